package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	logrus "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fleet_ops/internal/config"
	"fleet_ops/internal/models"
)

// ListDrivers fetches all drivers.
func ListDrivers(c *gin.Context) {
	var drivers []models.Driver
	if err := config.DB.Order("uid").Find(&drivers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing drivers: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": drivers})
}

// GetDriver fetches a single driver by uid.
func GetDriver(c *gin.Context) {
	var driver models.Driver
	if err := config.DB.First(&driver, "uid = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Driver not found."})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver": driver})
}

// ListVehicles fetches all buses in the fleet.
func ListVehicles(c *gin.Context) {
	var vehicles []models.Vehicle
	if err := config.DB.Order("bus_id").Find(&vehicles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing vehicles: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// GetVehicle fetches a single bus by id.
func GetVehicle(c *gin.Context) {
	var vehicle models.Vehicle
	if err := config.DB.First(&vehicle, "bus_id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found."})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicle": vehicle})
}

// importInput carries loosely-typed legacy documents for bulk import.
// Each document passes through the normalization boundary before it is
// persisted; malformed documents are reported per-item, not fatally.
type importInput struct {
	Drivers  []map[string]interface{} `json:"drivers"`
	Vehicles []map[string]interface{} `json:"vehicles"`
	Routes   []map[string]interface{} `json:"routes"`
}

// ImportFleet normalizes and upserts legacy fleet documents.
func ImportFleet(c *gin.Context) {
	var input importInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid import payload: " + err.Error()})
		return
	}

	var imported int
	var failures []string

	for _, doc := range input.Routes {
		route, err := models.NormalizeRoute(doc)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		if err := config.DB.Save(route).Error; err != nil {
			failures = append(failures, "route "+route.RouteID+": "+err.Error())
			continue
		}
		imported++
	}
	for _, doc := range input.Vehicles {
		vehicle, err := models.NormalizeVehicle(doc)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		if err := config.DB.Save(vehicle).Error; err != nil {
			failures = append(failures, "vehicle "+vehicle.BusID+": "+err.Error())
			continue
		}
		imported++
	}
	for _, doc := range input.Drivers {
		driver, err := models.NormalizeDriver(doc)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		if err := config.DB.Save(driver).Error; err != nil {
			failures = append(failures, "driver "+driver.UID+": "+err.Error())
			continue
		}
		imported++
	}

	logrus.WithFields(logrus.Fields{
		"imported": imported,
		"failed":   len(failures),
	}).Info("fleet import finished")

	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"failures": failures,
	})
}
