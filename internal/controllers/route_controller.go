package controllers

import (
	"encoding/binary"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fleet_ops/internal/config"
	"fleet_ops/internal/models"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// RouteResponse mirrors models.Route but carries Geometry as a GeoJSON
// string for API output.
type RouteResponse struct {
	RouteID   string        `json:"route_id"`
	Name      string        `json:"name"`
	StopCount int           `json:"stop_count"`
	Active    bool          `json:"active"`
	Geometry  string        `json:"geometry"`
	Stops     []models.Stop `json:"stops"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toRouteResponse(route models.Route) RouteResponse {
	jsonGeom, _ := convertWKBToGeoJSON(route.Geometry)
	return RouteResponse{
		RouteID:   route.RouteID,
		Name:      route.Name,
		StopCount: route.StopCount,
		Active:    route.Active,
		Geometry:  jsonGeom,
		Stops:     route.Stops,
		CreatedAt: route.CreatedAt,
		UpdatedAt: route.UpdatedAt,
	}
}

// parseAndConvertGeometry parses a GeoJSON string into a geom.T and returns WKB bytes
func parseAndConvertGeometry(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	var g geom.T
	err := gjson.Unmarshal([]byte(raw), &g)
	if err != nil {
		return nil, err
	}
	return wkb.Marshal(g, binary.LittleEndian)
}

// convertWKBToGeoJSON converts WKB bytes into a GeoJSON string
func convertWKBToGeoJSON(wkbBytes []byte) (string, error) {
	if len(wkbBytes) == 0 {
		return "", nil
	}
	g, err := wkb.Unmarshal(wkbBytes)
	if err != nil {
		return "", err
	}
	b, err := gjson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type stopInput struct {
	Name string  `json:"name"`
	Seq  int     `json:"seq"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// CreateRoute creates a new route with a GeoJSON LineString and stops.
func CreateRoute(c *gin.Context) {
	var input struct {
		RouteID  string      `json:"route_id"`
		Name     string      `json:"name" binding:"required"`
		Geometry string      `json:"geometry"` // GeoJSON string
		Active   *bool       `json:"active"`
		Stops    []stopInput `json:"stops"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		logrus.WithError(err).Warn("CreateRoute: invalid input payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	wkbBytes, err := parseAndConvertGeometry(input.Geometry)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid GeoJSON geometry: " + err.Error()})
		return
	}

	routeID := input.RouteID
	if routeID == "" {
		routeID = "route-" + uuid.NewString()
	}

	route := models.Route{
		RouteID:  routeID,
		Name:     input.Name,
		Active:   true,
		Geometry: wkbBytes,
	}
	if input.Active != nil {
		route.Active = *input.Active
	}
	for i, s := range input.Stops {
		seq := s.Seq
		if seq == 0 {
			seq = i + 1
		}
		route.Stops = append(route.Stops, models.Stop{
			Name:    s.Name,
			Seq:     seq,
			Lat:     s.Lat,
			Lng:     s.Lng,
			RouteID: routeID,
		})
	}
	route.StopCount = len(route.Stops)

	if err := config.DB.Create(&route).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create route: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"route": toRouteResponse(route)})
}

// ListRoutes returns every route with stops preloaded.
func ListRoutes(c *gin.Context) {
	var routes []models.Route
	if err := config.DB.Preload("Stops").Order("route_id").Find(&routes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing routes: " + err.Error()})
		return
	}
	responses := make([]RouteResponse, 0, len(routes))
	for _, route := range routes {
		responses = append(responses, toRouteResponse(route))
	}
	c.JSON(http.StatusOK, gin.H{"data": responses})
}

// GetRoute returns one route by id.
func GetRoute(c *gin.Context) {
	var route models.Route
	if err := config.DB.Preload("Stops").First(&route, "route_id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Route not found."})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": toRouteResponse(route)})
}

// UpdateRoute updates route metadata, geometry, and the active flag.
func UpdateRoute(c *gin.Context) {
	var route models.Route
	if err := config.DB.Preload("Stops").First(&route, "route_id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Route not found."})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		}
		return
	}

	var input struct {
		Name     *string `json:"name"`
		Geometry *string `json:"geometry"`
		Active   *bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	if input.Name != nil {
		route.Name = *input.Name
	}
	if input.Active != nil {
		route.Active = *input.Active
	}
	if input.Geometry != nil {
		wkbBytes, err := parseAndConvertGeometry(*input.Geometry)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid GeoJSON geometry: " + err.Error()})
			return
		}
		route.Geometry = wkbBytes
	}

	if err := config.DB.Save(&route).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update route: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"route": toRouteResponse(route)})
}
