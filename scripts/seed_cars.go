package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"carrental/internal/config"
	"carrental/internal/database"
	"carrental/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type carsFile struct {
	Cars []models.Car `yaml:"cars"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		carsPath = flag.String("cars", "configs/cars.yaml", "path to cars.yaml")
		dbPath   = flag.String("db", "./data/carrental.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*carsPath)
	if err != nil {
		return fmt.Errorf("read cars: %w", err)
	}
	var seed carsFile
	if err = yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse cars: %w", err)
	}
	if len(seed.Cars) == 0 {
		return fmt.Errorf("no cars in %s", *carsPath)
	}
	if err = config.ValidateCars(seed.Cars); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, updated := 0, 0
	for i := range seed.Cars {
		car := &seed.Cars[i]
		_, err := db.GetCar(ctx, car.ID)
		switch {
		case err == nil:
			updated++
		case errors.Is(err, database.ErrNotFound):
			created++
		default:
			return fmt.Errorf("get car %d: %w", car.ID, err)
		}
		if err := db.UpsertCar(ctx, car); err != nil {
			return err
		}
	}

	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}
