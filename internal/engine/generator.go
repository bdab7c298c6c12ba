package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"relstore/internal/dialect"
	"relstore/internal/schema"
	"relstore/internal/store"
)

// Generator produces fake cell values for catalog columns.
type Generator struct {
	f *gofakeit.Faker
}

// NewGenerator returns a generator seeded with seed; 0 picks a random seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{f: gofakeit.New(seed)}
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}

// Value generates a value for col. index is the 1-based attempt number; key
// columns fold it into the value so consecutive rows get distinct keys.
func (g *Generator) Value(col schema.ColumnDefinition, index int) any {
	meaning := schema.Meaning(col.Name)

	switch col.Type {
	case dialect.Integer11, dialect.Integer30:
		if col.Primary {
			return index
		}
		switch meaning {
		case "yesno":
			return g.f.Number(0, 1)
		case "count", "quantity":
			return g.f.Number(0, 100)
		}
		if col.Type == dialect.Integer11 {
			return g.f.Number(1, 50000)
		}
		return g.f.Number(1, 2000000000)

	case dialect.TinyInt1:
		return g.f.Number(0, 1)
	case dialect.TinyInt4:
		if col.Primary {
			return index % 128
		}
		return g.f.Number(0, 127)

	case dialect.Double:
		switch meaning {
		case "latitude":
			return g.f.Latitude()
		case "longitude":
			return g.f.Longitude()
		}
		return g.f.Price(0.99, 9999.99)

	case dialect.Date:
		return g.date(meaning).Format("2006-01-02")
	case dialect.DateTime:
		return g.date(meaning).Format(store.TimeLayout)

	case dialect.Blob, dialect.LongBlob:
		return []byte(g.f.LetterN(16))
	}

	s := g.text(col, meaning)
	if col.Primary && meaning != "id" {
		s = fmt.Sprintf("%d-%s", index, s)
	}
	return truncate(s, col.Type.Width())
}

func (g *Generator) date(meaning string) time.Time {
	now := time.Now()
	if meaning == "expires" {
		return g.f.DateRange(now.Add(time.Hour), now.AddDate(0, 1, 0))
	}
	return g.f.DateRange(now.AddDate(-1, 0, 0), now)
}

func (g *Generator) text(col schema.ColumnDefinition, meaning string) string {
	width := col.Type.Width()

	switch meaning {
	case "id":
		id := g.f.UUID()
		if width > 0 && width < len(id) {
			id = strings.ReplaceAll(id, "-", "")
		}
		return id
	case "email":
		return g.f.Email()
	case "phone":
		return g.f.Phone()
	case "password":
		return g.f.Password(true, true, true, false, false, 12)
	case "url":
		return g.f.URL()
	case "ip":
		return g.f.IPv4Address()
	case "zipcode":
		return g.f.Zip()
	case "address":
		return g.f.Street()
	case "city":
		return g.f.City()
	case "country":
		return g.f.Country()
	case "name":
		if width > 0 && width < 3 {
			return g.f.LetterN(uint(width))
		}
		return g.f.Name()
	case "title", "subject":
		return g.f.Sentence(3)
	case "description", "message", "text":
		return g.f.Sentence(10)
	case "yesno":
		if g.f.Bool() {
			return "Y"
		}
		return "N"
	case "status":
		return g.f.RandomString([]string{"active", "inactive", "pending"})
	case "date", "expires":
		return g.date(meaning).Format(store.TimeLayout)
	case "price", "amount":
		return fmt.Sprintf("%.2f", g.f.Price(0.99, 9999.99))
	case "count", "quantity":
		return fmt.Sprint(g.f.Number(0, 100))
	}

	if width > 0 && width < 20 {
		return g.f.Word()
	}
	return g.f.Sentence(5)
}
