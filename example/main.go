package main

import (
	"context"
	"os"

	ddd "github.com/paulvitic/ddd-projector"
	"github.com/paulvitic/ddd-projector/application"
	"github.com/paulvitic/ddd-projector/example/customers"
	"github.com/paulvitic/ddd-projector/example/orders"
)

// Run "customers" first, then "orders" with CUSTOMERS_URL pointing at it.
func main() {
	log := ddd.NewLogger()
	ctx := context.Background()

	service := "orders"
	if len(os.Args) > 1 {
		service = os.Args[1]
	}

	settings, err := application.NewSettings(os.Getenv("PROFILE"))
	if err != nil {
		log.Warn("No configuration file loaded, reading environment: %v", err)
		if settings, err = application.SettingsFromEnv(); err != nil {
			panic(err)
		}
	}

	srv, err := application.NewServer(ctx, settings)
	if err != nil {
		panic(err)
	}

	switch service {
	case "customers":
		if err := customers.Seed(ctx, srv.EventLog()); err != nil {
			panic(err)
		}
	case "orders":
		customersURL := os.Getenv("CUSTOMERS_URL")
		if customersURL == "" {
			customersURL = "http://localhost:8081"
		}
		if _, err := orders.Register(ctx, srv, customersURL); err != nil {
			panic(err)
		}
	default:
		log.Error("Unknown service %s", service)
		os.Exit(2)
	}

	if err := srv.Start(); err != nil {
		panic(err)
	}
}
