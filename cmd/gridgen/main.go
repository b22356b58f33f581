package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"polescan/internal/geo"
	"polescan/internal/models"
	"polescan/internal/repository/sqlite"
)

func main() {
	centerLat := flag.Float64("lat", 0, "AOI center latitude")
	centerLon := flag.Float64("lon", 0, "AOI center longitude")
	window := flag.Float64("window", 1000, "AOI square window edge in meters")
	tile := flag.Float64("tile", 80, "Tile edge in meters")
	overlap := flag.Float64("overlap", 10, "Tile overlap in meters")
	dbPath := flag.String("db", filepath.Join("data", "polescan.db"), "Database path")
	flag.Parse()

	if *centerLat == 0 && *centerLon == 0 {
		log.Fatal("AOI center is required: -lat and -lon")
	}

	aoi, err := geo.BBoxFromCenter(*centerLat, *centerLon, *window)
	if err != nil {
		log.Fatalf("Failed to compute AOI: %v", err)
	}

	fmt.Printf("Generating grid for AOI %s (%.0fm window, %.0fm tiles, %.0fm overlap)\n",
		aoi.String(), *window, *tile, *overlap)

	cells, err := geo.Grid(aoi, *tile, *overlap)
	if err != nil {
		log.Fatalf("Failed to build grid: %v", err)
	}

	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	tiles := make([]models.Tile, 0, len(cells))
	for _, c := range cells {
		tiles = append(tiles, models.Tile{
			Row:    c.Row,
			Col:    c.Col,
			MinLon: c.BBox.MinLon,
			MinLat: c.BBox.MinLat,
			MaxLon: c.BBox.MaxLon,
			MaxLat: c.BBox.MaxLat,
		})
	}

	fmt.Printf("Inserting %d tiles into database...\n", len(tiles))
	repo := sqlite.NewTileRepository(db)
	inserted, err := repo.BulkInsert(tiles)
	if err != nil {
		log.Fatalf("Failed to insert tiles: %v", err)
	}

	fmt.Printf("✅ Inserted %d new tile(s), %d already existed\n", inserted, len(tiles)-inserted)

	counts, err := repo.Counts()
	if err == nil {
		fmt.Printf("\n📊 Grid statistics:\n")
		fmt.Printf("   Total:      %d\n", counts.Total)
		fmt.Printf("   Pending:    %d\n", counts.Pending)
		fmt.Printf("   Processing: %d\n", counts.Processing)
		fmt.Printf("   Done:       %d\n", counts.Done)
		fmt.Printf("   Failed:     %d\n", counts.Failed)
	}
}
