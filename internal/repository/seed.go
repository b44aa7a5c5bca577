package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// Seed fills a memory store with a client and a few active campaigns so a
// local instance serves something out of the box.
func Seed(r *MemoryRepository, now time.Time) {
	now = now.UTC()
	r.SaveClient(models.Client{ID: "acme", Name: "Acme Media", Email: "ads@acme.example"})

	campaign := func(id, name string, adType models.AdType, total int64, targeting models.Targeting, creatives ...models.Creative) *models.CampaignWithCreatives {
		budget, _ := models.NewBudget(decimal.NewFromInt(total), models.DefaultCurrency)
		dates, _ := models.NewDates(now.Add(-time.Hour), now.AddDate(0, 0, 30))
		activated := now.Add(-time.Hour)
		for i := range creatives {
			creatives[i].CampaignID = id
			creatives[i].Status = models.CreativeActive
			creatives[i].CreatedAt = now
			creatives[i].UpdatedAt = now
		}
		return &models.CampaignWithCreatives{
			Campaign: models.Campaign{
				ID:          id,
				Name:        name,
				Type:        adType,
				ClientID:    "acme",
				Budget:      budget,
				Dates:       dates,
				Pricing:     models.Pricing{Model: models.PricingCPM, BaseRate: decimal.NewFromInt(5)},
				Targeting:   targeting,
				Status:      models.StatusActive,
				Metrics:     models.Metrics{ConversionValue: decimal.Zero},
				ActivatedAt: &activated,
				CreatedAt:   now,
				UpdatedAt:   now,
			},
			Creatives: creatives,
		}
	}

	seeds := []*models.CampaignWithCreatives{
		campaign("spotify", "Spotify - Music for everyone", models.AdTypeBanner, 1000,
			models.Targeting{Geographic: &models.Geographic{Countries: []string{"us", "ca"}}},
			models.Creative{ID: "spotify-hero", Title: "Music for everyone", CallToAction: "Download",
				DestinationURL: "https://example.com/spotify", Content: models.Content{URL: "https://cdn.example.com/spotify.png"}, Primary: true},
		),
		campaign("duolingo", "Duolingo: Best way to learn", models.AdTypeSidebar, 500,
			models.Targeting{
				Device:           &models.DeviceTargeting{OS: []string{"android", "ios"}},
				PositionAffinity: []string{"sidebar"},
			},
			models.Creative{ID: "duolingo-owl", Title: "Learn a language", CallToAction: "Install",
				DestinationURL: "https://example.com/duolingo", Content: models.Content{URL: "https://cdn.example.com/duolingo.png"}},
		),
		campaign("jobfair", "Regional job fair", models.AdTypeNative, 250,
			models.Targeting{Interests: []string{"jobs", "careers"}},
			models.Creative{ID: "jobfair-native", Title: "Meet 50 employers", CallToAction: "Register",
				DestinationURL: "https://example.com/jobfair"},
		),
	}
	for _, c := range seeds {
		_ = r.CreateCampaign(context.Background(), c)
	}
}
