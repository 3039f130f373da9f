package models

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestStringListDecodesLegacyString(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"sizes": " S, M ,,L "})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc struct {
		Sizes StringList `bson:"sizes"`
	}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"S", "M", "L"}
	if len(doc.Sizes) != len(want) {
		t.Fatalf("expected %v, got %v", want, doc.Sizes)
	}
	for i := range want {
		if doc.Sizes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, doc.Sizes)
		}
	}
}

func TestStringListRoundTripsAsArray(t *testing.T) {
	raw, err := bson.Marshal(struct {
		Colors StringList `bson:"colors"`
	}{Colors: StringList{"Red", "Blue"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic bson.M
	if err := bson.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := generic["colors"].(bson.A); !ok {
		t.Fatalf("expected array, got %T", generic["colors"])
	}
}

func TestStringListContainsIgnoresCase(t *testing.T) {
	list := StringList{"Navy", "Olive"}
	if !list.Contains("navy") {
		t.Fatal("expected navy to match")
	}
	if list.Contains("Red") {
		t.Fatal("did not expect Red")
	}
}
