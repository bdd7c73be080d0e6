package seed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

const defaultRestaurantName = "Lungo Trattoria"

type option struct {
	Label string `json:"label"`
	Price string `json:"price"`
}

type productSeed struct {
	Category string
	Name     string
	Price    string
	Extras   []option
	Excludes []option
}

var demoMenu = []productSeed{
	{Category: "Pane e pierina", Name: "Surtido de focaccias", Price: "4.85"},
	{Category: "Pane e pierina", Name: "Pierina Parmigiana", Price: "5.15"},
	{Category: "Pane e pierina", Name: "Pierina Tartufata", Price: "5.55"},
	{
		Category: "Insalate", Name: "Insalata di burrata", Price: "11.90",
		Extras:   []option{{Label: "Pistacho", Price: "1.20"}, {Label: "Jamón de Parma", Price: "2.50"}},
		Excludes: []option{{Label: "Tomate", Price: "0"}, {Label: "Rúcula", Price: "0"}},
	},
	{
		Category: "Pasta fresca", Name: "Tagliatelle al ragù", Price: "13.40",
		Extras:   []option{{Label: "Parmigiano extra", Price: "1.50"}, {Label: "Trufa", Price: "3.00"}},
		Excludes: []option{{Label: "Cebolla", Price: "0"}},
	},
	{
		Category: "Pizze", Name: "Margherita", Price: "10.50",
		Extras:   []option{{Label: "Bacon", Price: "1.50"}, {Label: "Burrata", Price: "2.80"}},
		Excludes: []option{{Label: "Albahaca", Price: "0"}},
	},
	{
		Category: "Griglia", Name: "Tagliata di manzo", Price: "21.00",
		Extras: []option{{Label: "Salsa trufada", Price: "1.80"}, {Label: "Salsa Fiorentina", Price: "1.20"}},
	},
	{Category: "Dolci", Name: "Tiramisù", Price: "6.20"},
	{Category: "Bevande", Name: "Agua mineral", Price: "2.20"},
}

// EnsureDemoRestaurant seeds the demo restaurant and menu once and returns its slug.
func EnsureDemoRestaurant(db *gorm.DB, node *snowflake.Node) (string, error) {
	if db == nil || node == nil {
		return "", errors.New("seed database handle is required")
	}

	restaurantSlug := slug.Make(defaultRestaurantName)
	ctx := context.Background()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Raw(`SELECT COUNT(1) FROM restaurants WHERE slug = ?`, restaurantSlug).Scan(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		now := time.Now().UTC()
		restaurantID := node.Generate()
		if err := tx.Exec(`INSERT INTO restaurants (id, slug, name, created_at) VALUES (?, ?, ?, ?)`,
			restaurantID, restaurantSlug, defaultRestaurantName, now).Error; err != nil {
			return err
		}

		for _, p := range demoMenu {
			extras, err := encodeOptions(p.Extras)
			if err != nil {
				return err
			}
			excludes, err := encodeOptions(p.Excludes)
			if err != nil {
				return err
			}
			if err := tx.Exec(`INSERT INTO products (id, restaurant_id, name, category, price, extras, excludes, active, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				node.Generate(), restaurantID, p.Name, p.Category, p.Price, extras, excludes, true, now,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return restaurantSlug, nil
}

func encodeOptions(opts []option) (string, error) {
	if len(opts) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
