package main

import (
	"log"
	"net/http"

	"fleet_ops/internal/config"
	"fleet_ops/internal/controllers"
	"fleet_ops/internal/logger"
	"fleet_ops/internal/middleware"
	"fleet_ops/internal/routes"
	"fleet_ops/internal/store"
)

func main() {
	// Initialize structured logging to file
	logger.Setup()

	// Connect to the database
	config.InitDB()

	// Wire the reassignment engine to the durable store
	controllers.InitAssignmentEngine(store.NewGormStore(config.DB))

	// Setup Gin router
	r := routes.SetupRouter()

	// Wrap with CORS
	handler := middleware.EnableCORS(r)

	log.Println("🚌 Fleet ops server running at :8080")
	log.Fatal(http.ListenAndServe("0.0.0.0:8080", handler))
}
