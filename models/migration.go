package models

import (
	"log"

	"github.com/quillpost/newsletter_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Subscriber{}, &SubscriptionToken{},
		&NewsletterIssue{},
		&IdempotencyRecord{},
		&DeliveryTask{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
