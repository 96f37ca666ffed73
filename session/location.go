package session

import (
	"net/url"
	"sync"
)

// Location is the visible address the controller reads the public menu parameter from.
type Location interface {
	// Query reports the value of param and whether the key is present at all.
	Query(param string) (string, bool)
	// StripParam removes param from the visible address.
	StripParam(param string)
}

// URLLocation is a Location over a parsed URL.
type URLLocation struct {
	mu sync.Mutex
	u  url.URL
}

func NewURLLocation(raw string) (*URLLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &URLLocation{u: *u}, nil
}

func (l *URLLocation) Query(param string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	values := l.u.Query()
	if !values.Has(param) {
		return "", false
	}
	return values.Get(param), true
}

func (l *URLLocation) StripParam(param string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	values := l.u.Query()
	values.Del(param)
	l.u.RawQuery = values.Encode()
}

func (l *URLLocation) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.u.String()
}
