package models

import (
	"log"

	"bitbucket.org/mmdatafocus/menu_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Product{},
		&Table{},
		&Order{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
