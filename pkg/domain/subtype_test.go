package domain

import "testing"

func TestDetermineSubtype(t *testing.T) {
	cases := []struct {
		name   string
		wagon  bool
		head   bool
		expect Subtype
	}{
		{"engine head", false, true, SubtypeEngine | SubtypeFront},
		{"engine", false, false, SubtypeEngine},
		{"wagon head", true, true, SubtypeWagon | SubtypeFreeWagon},
		{"wagon", true, false, SubtypeWagon},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetermineSubtype(tc.wagon, tc.head); got != tc.expect {
				t.Fatalf("got %08b want %08b", got, tc.expect)
			}
		})
	}
	if SubtypeWagon != 4 || SubtypeEngine != 8 {
		t.Fatalf("subtype bit layout changed: wagon=%d engine=%d", SubtypeWagon, SubtypeEngine)
	}
}

func TestSubtypeIsMarker(t *testing.T) {
	cases := []struct {
		subtype Subtype
		marker  bool
	}{
		{SubtypeEngine | SubtypeFront, false},
		{SubtypeWagon, false},
		{SubtypeArticulatedPart, true},
		{SubtypeWagon | SubtypeArticulatedPart, true},
		{SubtypeEngine | SubtypeMultiheaded, false},
		{SubtypeMultiheaded, true},
	}
	for _, tc := range cases {
		if got := tc.subtype.IsMarker(); got != tc.marker {
			t.Fatalf("subtype %08b: marker=%v want %v", tc.subtype, got, tc.marker)
		}
	}
}

func TestRealUnitsSkipsMarkers(t *testing.T) {
	nodes := []Vehicle{
		{ID: 1, Subtype: SubtypeEngine | SubtypeFront | SubtypeMultiheaded},
		{ID: 2, Subtype: SubtypeArticulatedPart},
		{ID: 3, Subtype: SubtypeWagon},
		{ID: 4, Subtype: SubtypeMultiheaded},
	}
	real := RealUnits(nodes)
	if len(real) != 2 || real[0].ID != 1 || real[1].ID != 3 {
		t.Fatalf("unexpected real units %+v", real)
	}
}

func TestEngineCanCarry(t *testing.T) {
	e := Engine{DefaultCargo: 1, RefitCapacities: map[CargoID]uint16{2: 20}}
	if !e.CanCarry(1) || !e.CanCarry(2) {
		t.Fatalf("expected default and refit cargo to be carried")
	}
	if e.CanCarry(3) || e.CanCarry(InvalidCargo) {
		t.Fatalf("unexpected cargo accepted")
	}
}
