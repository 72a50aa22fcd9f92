package main

import (
	"flag"
	"log"

	"econ-empire/internal/config"
	"econ-empire/internal/db"
)

func main() {
	filePath := flag.String("file", "", "path to reference csv (kind,code,name); built-in pool when empty")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}

	conn, err := db.Open(config.Load())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	data := db.DefaultReferenceData()
	if *filePath != "" {
		data, err = db.ReadReferenceCSV(*filePath)
		if err != nil {
			log.Fatalf("failed to read reference data: %v", err)
		}
	}

	loaded, err := db.LoadReferenceData(conn, data)
	if err != nil {
		log.Fatalf("failed to load reference data: %v", err)
	}
	log.Printf("loaded %d countries and products", loaded)
}
