package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Restaurant struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	Slug      string    `json:"slug" gorm:"type:varchar(120);not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"type:varchar(200);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Restaurant) TableName() string { return "restaurants" }

// ModifierOption is one priced choice a product offers.
type ModifierOption struct {
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

type Product struct {
	ID           int64                               `json:"id" gorm:"primaryKey"`
	RestaurantID int64                               `json:"restaurant_id" gorm:"not null;index"`
	Name         string                              `json:"name" gorm:"type:varchar(200);not null"`
	Category     string                              `json:"category" gorm:"type:varchar(120);not null"`
	Price        decimal.Decimal                     `json:"price" gorm:"type:numeric(12,2);not null"`
	Extras       datatypes.JSONSlice[ModifierOption] `json:"extras" gorm:"type:jsonb"`
	Excludes     datatypes.JSONSlice[ModifierOption] `json:"excludes" gorm:"type:jsonb"`
	Active       bool                                `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time                           `json:"created_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// FindExtra looks up an extra option by label, ignoring case and surrounding space.
func (p Product) FindExtra(label string) (ModifierOption, bool) {
	return findOption(p.Extras, label)
}

// FindExclude looks up a removal option by label.
func (p Product) FindExclude(label string) (ModifierOption, bool) {
	return findOption(p.Excludes, label)
}

func findOption(options []ModifierOption, label string) (ModifierOption, bool) {
	label = strings.TrimSpace(label)
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt.Label), label) {
			return opt, true
		}
	}
	return ModifierOption{}, false
}
