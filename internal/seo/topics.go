package seo

import (
	"math"
	"sort"
	"strings"
)

// topicKeywords is the static classification table. Scores are substring
// occurrence counts over anchor texts and linking-domain names.
var topicKeywords = map[string][]string{
	"Business / Finance": {"loan", "finance", "bank", "invest", "credit", "insurance", "mortgage", "account", "tax"},
	"Health":             {"health", "medical", "doctor", "dental", "clinic", "wellness", "therapy", "pharma"},
	"Home / Garden":      {"home", "garden", "landscap", "roof", "plumb", "remodel", "hvac", "lawn", "clean"},
	"Computers / Internet": {"software", "seo", "hosting", "tech", "digital", "app", "web design", "marketing", "data"},
	"Travel":             {"travel", "hotel", "tour", "flight", "vacation", "resort"},
	"Shopping":           {"shop", "store", "deal", "coupon", "buy", "sale"},
	"Society / Law":      {"law", "attorney", "legal", "court", "notary"},
	"Arts / Entertainment": {"music", "movie", "photo", "design", "art", "event"},
	"Sports / Fitness":   {"sport", "fitness", "gym", "golf", "yoga", "coach"},
	"News / Media":       {"news", "blog", "magazine", "press", "media"},
	"Education":          {"school", "course", "university", "training", "academy", "tutor"},
	"Food / Dining":      {"restaurant", "food", "cafe", "recipe", "catering", "bakery"},
	"Real Estate":        {"real estate", "realtor", "property", "realty", "apartment"},
	"Automotive":         {"auto", "car ", "vehicle", "truck", "tire", "repair"},
}

// ClassifyTopics buckets anchor texts and linking-domain names into the
// fixed category table. Categories with zero hits are dropped; the top five
// by raw score are kept, with pct redistributed over the survivors and score
// weighted by the profile's trust flow.
func ClassifyTopics(texts []string, trustFlow int) []TopicScore {
	corpus := strings.ToLower(strings.Join(texts, " "))
	if strings.TrimSpace(corpus) == "" {
		return nil
	}

	var scored []TopicScore
	for topic, keywords := range topicKeywords {
		score := 0
		for _, kw := range keywords {
			score += strings.Count(corpus, kw)
		}
		if score > 0 {
			scored = append(scored, TopicScore{Topic: topic, Score: score})
		}
	}
	if len(scored) == 0 {
		return nil
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Topic < scored[j].Topic
	})
	if len(scored) > 5 {
		scored = scored[:5]
	}

	total := 0
	for _, t := range scored {
		total += t.Score
	}
	for i := range scored {
		raw := scored[i].Score
		scored[i].Pct = int(math.Round(float64(raw) / float64(total) * 100))
		scored[i].Score = int(math.Round(float64(scored[i].Pct) * float64(TrustFlow(trustFlow)) / 100))
	}
	return scored
}
