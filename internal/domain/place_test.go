package domain

import (
	"errors"
	"math"
	"testing"
)

func TestCoordinateValidate(t *testing.T) {
	valid := []Coordinate{{0, 0}, {90, 180}, {-90, -180}, {37.78, -122.41}}
	for _, c := range valid {
		if err := c.Validate(); err != nil {
			t.Errorf("%v: unexpected error %v", c, err)
		}
	}
	invalid := []Coordinate{{91, 0}, {0, 181}, {math.NaN(), 0}, {0, math.Inf(1)}}
	for _, c := range invalid {
		if err := c.Validate(); !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("%v: expected ErrInvalidCoordinate, got %v", c, err)
		}
	}
}

func TestAddCategoriesKeepsFirstOrder(t *testing.T) {
	var p Place
	p.AddCategories("gym", "pilates", "gym", "", "yoga")
	if len(p.Categories) != 3 || p.Categories[0] != "gym" || p.Categories[2] != "yoga" {
		t.Fatalf("unexpected categories: %v", p.Categories)
	}
}

func TestMergeDetailsKeepsIdentityAndDistance(t *testing.T) {
	openNow := true
	p := Place{ID: "A", Name: "Iron Gym", Address: "1 Main St", DistanceText: "1 km", DistanceMeters: 1000}
	p.MergeDetails(Place{
		ID:           "other",
		Name:         "Other name",
		Address:      "2 Side St",
		Phone:        "555-0100",
		OpeningHours: []string{"Monday: 6 AM - 10 PM"},
		OpenNow:      &openNow,
		Website:      "https://iron.example",
	})

	if p.ID != "A" || p.Name != "Iron Gym" || p.Address != "1 Main St" {
		t.Fatalf("identity fields changed: %#v", p)
	}
	if p.DistanceText != "1 km" || p.DistanceMeters != 1000 {
		t.Fatal("distance annotation must survive the merge")
	}
	if p.Phone != "555-0100" || p.Website == "" || len(p.OpeningHours) != 1 || !p.DetailsLoaded {
		t.Fatalf("detail fields not merged: %#v", p)
	}
	openNow = false
	if !*p.OpenNow {
		t.Fatal("merged OpenNow must not alias the source")
	}
}

func TestMergeDetailsFillsMissingAddress(t *testing.T) {
	p := Place{ID: "A"}
	p.MergeDetails(Place{Address: "2 Side St"})
	if p.Address != "2 Side St" {
		t.Fatalf("expected address filled, got %q", p.Address)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := Place{ID: "A", Categories: []string{"gym"}, Photos: []PhotoRef{{Reference: "r"}}}
	c := p.Clone()
	c.Categories[0] = "spa"
	c.Photos[0].Reference = "x"
	if p.Categories[0] != "gym" || p.Photos[0].Reference != "r" {
		t.Fatal("clone shares slices with the original")
	}
}

func TestNormalizeTravelMode(t *testing.T) {
	if NormalizeTravelMode("walking") != TravelModeWalking {
		t.Fatal("expected walking")
	}
	if NormalizeTravelMode("rocket") != TravelModeDriving {
		t.Fatal("unknown modes fall back to driving")
	}
}
