package routes

import (
	"fleet_ops/internal/controllers"
	"fleet_ops/internal/middleware"

	"github.com/gin-gonic/gin"
)

// AdminRoutes mounts the reassignment engine surface plus fleet
// management. Only admins may stage and commit reassignments.
func AdminRoutes(r *gin.Engine) {
	admin := r.Group("/admin")
	admin.Use(middleware.RequireAuthWithRole("admin"))
	{
		admin.GET("/drivers", controllers.ListDrivers)
		admin.GET("/drivers/:id", controllers.GetDriver)
		admin.GET("/vehicles", controllers.ListVehicles)
		admin.GET("/vehicles/:id", controllers.GetVehicle)
		admin.GET("/routes", controllers.ListRoutes)
		admin.GET("/routes/:id", controllers.GetRoute)
		admin.POST("/routes", controllers.CreateRoute)
		admin.PUT("/routes/:id", controllers.UpdateRoute)
		admin.POST("/import", controllers.ImportFleet)

		// Assignment staging session
		admin.POST("/assignments/session", controllers.OpenSession)
		admin.GET("/assignments/session", controllers.GetSession)
		admin.DELETE("/assignments/session", controllers.CancelSession)
		admin.POST("/assignments/rows", controllers.StageRow)
		admin.DELETE("/assignments/rows/:id", controllers.UnstageRow)
		admin.POST("/assignments/confirm", controllers.ConfirmSession)

		// Merged (effective) views over the session
		admin.GET("/assignments/vehicles/:id/driver", controllers.ResolveDriverForVehicle)
		admin.GET("/assignments/drivers/:id/vehicle", controllers.ResolveVehicleForDriver)
		admin.GET("/assignments/vehicles/:id/route", controllers.ResolveRouteForVehicle)

		// Audit trail
		admin.GET("/assignments/logs", controllers.ListReassignmentLogs)
		admin.POST("/assignments/logs/:id/rollback", controllers.RollbackOperation)
	}
}
