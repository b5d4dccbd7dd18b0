// Package models contains domain models for the taste trainer.
package models

import "sort"

// FeatureGroup classifies a taste feature.
type FeatureGroup string

const (
	GroupCuisine    FeatureGroup = "cuisine"
	GroupFlavor     FeatureGroup = "flavor"
	GroupTexture    FeatureGroup = "texture"
	GroupTechnique  FeatureGroup = "technique"
	GroupIngredient FeatureGroup = "ingredient"
	GroupNutrition  FeatureGroup = "nutrition"
)

// FeatureID is the stable identifier of a taste feature.
// The string values are part of the persisted and wire formats.
type FeatureID string

// Cuisine features.
const (
	FeatureChuanStyle     FeatureID = "chuanStyle"
	FeatureCantoneseStyle FeatureID = "cantoneseStyle"
	FeatureJapaneseStyle  FeatureID = "japaneseStyle"
	FeatureThaiStyle      FeatureID = "thaiStyle"
)

// Flavor features.
const (
	FeatureSpicy   FeatureID = "spicy"
	FeatureNumbing FeatureID = "numbing"
	FeatureSweet   FeatureID = "sweet"
	FeatureSour    FeatureID = "sour"
	FeatureUmami   FeatureID = "umami"
	FeatureSalty   FeatureID = "salty"
	FeatureSmoky   FeatureID = "smoky"
	FeatureHerbal  FeatureID = "herbal"
	FeatureRich    FeatureID = "rich"
	FeatureLight   FeatureID = "light"
	FeatureFresh   FeatureID = "fresh"
)

// Texture features.
const (
	FeatureCrispy FeatureID = "crispy"
	FeatureTender FeatureID = "tender"
	FeatureChewy  FeatureID = "chewy"
	FeatureJuicy  FeatureID = "juicy"
	FeatureBrothy FeatureID = "brothy"
)

// Technique features.
const (
	FeatureStirFried FeatureID = "stirFried"
	FeatureGrilled   FeatureID = "grilled"
	FeatureBraised   FeatureID = "braised"
	FeatureDeepFried FeatureID = "deepFried"
	FeatureSteamed   FeatureID = "steamed"
	FeatureRaw       FeatureID = "raw"
)

// Ingredient features.
const (
	FeatureNoodle   FeatureID = "noodle"
	FeatureRice     FeatureID = "rice"
	FeatureSeafood  FeatureID = "seafood"
	FeatureBeef     FeatureID = "beef"
	FeaturePork     FeatureID = "pork"
	FeatureChicken  FeatureID = "chicken"
	FeatureLamb     FeatureID = "lamb"
	FeatureDuck     FeatureID = "duck"
	FeatureTofu     FeatureID = "tofu"
	FeatureMushroom FeatureID = "mushroom"
	FeatureCheese   FeatureID = "cheese"
	FeatureCilantro FeatureID = "cilantro"
	FeatureGarlic   FeatureID = "garlic"
)

// Nutrition features.
const (
	FeatureHighProtein   FeatureID = "highProtein"
	FeatureLowCarb       FeatureID = "lowCarb"
	FeatureVeggieForward FeatureID = "veggieForward"
)

// Feature describes one taste dimension.
type Feature struct {
	ID    FeatureID    `json:"id"`
	Name  string       `json:"name"`
	Group FeatureGroup `json:"group"`
}

// Features is the fixed feature catalog in display order.
var Features = []Feature{
	{ID: FeatureChuanStyle, Name: "Sichuan", Group: GroupCuisine},
	{ID: FeatureCantoneseStyle, Name: "Cantonese", Group: GroupCuisine},
	{ID: FeatureJapaneseStyle, Name: "Japanese", Group: GroupCuisine},
	{ID: FeatureThaiStyle, Name: "Thai", Group: GroupCuisine},

	{ID: FeatureSpicy, Name: "Spicy", Group: GroupFlavor},
	{ID: FeatureNumbing, Name: "Numbing", Group: GroupFlavor},
	{ID: FeatureSweet, Name: "Sweet", Group: GroupFlavor},
	{ID: FeatureSour, Name: "Sour", Group: GroupFlavor},
	{ID: FeatureUmami, Name: "Umami", Group: GroupFlavor},
	{ID: FeatureSalty, Name: "Savory", Group: GroupFlavor},
	{ID: FeatureSmoky, Name: "Smoky", Group: GroupFlavor},
	{ID: FeatureHerbal, Name: "Herbs & Spices", Group: GroupFlavor},
	{ID: FeatureRich, Name: "Rich", Group: GroupFlavor},
	{ID: FeatureLight, Name: "Light", Group: GroupFlavor},
	{ID: FeatureFresh, Name: "Fresh", Group: GroupFlavor},

	{ID: FeatureCrispy, Name: "Crispy", Group: GroupTexture},
	{ID: FeatureTender, Name: "Tender", Group: GroupTexture},
	{ID: FeatureChewy, Name: "Chewy", Group: GroupTexture},
	{ID: FeatureJuicy, Name: "Juicy", Group: GroupTexture},
	{ID: FeatureBrothy, Name: "Brothy", Group: GroupTexture},

	{ID: FeatureStirFried, Name: "Stir-fried", Group: GroupTechnique},
	{ID: FeatureGrilled, Name: "Grilled", Group: GroupTechnique},
	{ID: FeatureBraised, Name: "Braised", Group: GroupTechnique},
	{ID: FeatureDeepFried, Name: "Deep-fried", Group: GroupTechnique},
	{ID: FeatureSteamed, Name: "Steamed", Group: GroupTechnique},
	{ID: FeatureRaw, Name: "Cold / Raw", Group: GroupTechnique},

	{ID: FeatureNoodle, Name: "Noodles", Group: GroupIngredient},
	{ID: FeatureRice, Name: "Rice", Group: GroupIngredient},
	{ID: FeatureSeafood, Name: "Seafood", Group: GroupIngredient},
	{ID: FeatureBeef, Name: "Beef", Group: GroupIngredient},
	{ID: FeaturePork, Name: "Pork", Group: GroupIngredient},
	{ID: FeatureChicken, Name: "Chicken", Group: GroupIngredient},
	{ID: FeatureLamb, Name: "Lamb", Group: GroupIngredient},
	{ID: FeatureDuck, Name: "Duck", Group: GroupIngredient},
	{ID: FeatureTofu, Name: "Tofu", Group: GroupIngredient},
	{ID: FeatureMushroom, Name: "Mushroom", Group: GroupIngredient},
	{ID: FeatureCheese, Name: "Cheese", Group: GroupIngredient},
	{ID: FeatureCilantro, Name: "Cilantro", Group: GroupIngredient},
	{ID: FeatureGarlic, Name: "Garlic", Group: GroupIngredient},

	{ID: FeatureHighProtein, Name: "High protein", Group: GroupNutrition},
	{ID: FeatureLowCarb, Name: "Low carb", Group: GroupNutrition},
	{ID: FeatureVeggieForward, Name: "Veggie forward", Group: GroupNutrition},
}

var featuresByID = func() map[FeatureID]Feature {
	m := make(map[FeatureID]Feature, len(Features))
	for _, f := range Features {
		m[f.ID] = f
	}
	return m
}()

// LookupFeature returns the catalog entry for id and whether it exists.
func LookupFeature(id FeatureID) (Feature, bool) {
	f, ok := featuresByID[id]
	return f, ok
}

// FeatureFor returns the catalog entry for id.
// Unknown ids yield a synthetic flavor feature named after the id.
func FeatureFor(id FeatureID) Feature {
	if f, ok := featuresByID[id]; ok {
		return f
	}
	return Feature{ID: id, Name: string(id), Group: GroupFlavor}
}

// IsValid reports whether id is part of the catalog.
func (id FeatureID) IsValid() bool {
	_, ok := featuresByID[id]
	return ok
}

// FeaturesInGroup returns the catalog entries of a group in display order.
func FeaturesInGroup(group FeatureGroup) []Feature {
	var out []Feature
	for _, f := range Features {
		if f.Group == group {
			out = append(out, f)
		}
	}
	return out
}

// SortFeatureIDs sorts ids in catalog order; unknown ids go last, alphabetically.
func SortFeatureIDs(ids []FeatureID) {
	sort.SliceStable(ids, func(i, j int) bool {
		oi, iok := featureOrder[ids[i]]
		oj, jok := featureOrder[ids[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return ids[i] < ids[j]
		}
	})
}

var featureOrder = func() map[FeatureID]int {
	m := make(map[FeatureID]int, len(Features))
	for i, f := range Features {
		m[f.ID] = i
	}
	return m
}()
