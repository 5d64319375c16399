package routes

import (
	"fleet_ops/internal/controllers"
	"fleet_ops/internal/middleware"

	"github.com/gin-gonic/gin"
)

// DispatcherRoutes gives dispatchers read-only visibility into the fleet
// and the audit trail.
func DispatcherRoutes(r *gin.Engine) {
	dispatcher := r.Group("/dispatcher")
	dispatcher.Use(middleware.RequireAuthWithRole("dispatcher"))
	{
		dispatcher.GET("/drivers", controllers.ListDrivers)
		dispatcher.GET("/vehicles", controllers.ListVehicles)
		dispatcher.GET("/routes", controllers.ListRoutes)
		dispatcher.GET("/logs", controllers.ListReassignmentLogs)
	}
}
