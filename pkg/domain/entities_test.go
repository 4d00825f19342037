package domain

import "testing"

func TestVehiclePredicates(t *testing.T) {
	head := Vehicle{ID: 1, Subtype: SubtypeEngine | SubtypeFront, InDepot: true, Stopped: true}
	if !head.IsPrimary() || !head.IsStoppedInDepot() || head.IsFreeWagon() {
		t.Fatalf("unexpected head predicates")
	}
	moving := head
	moving.Stopped = false
	if moving.IsStoppedInDepot() {
		t.Fatalf("running train reported as stopped in depot")
	}
	loose := Vehicle{ID: 2, Subtype: SubtypeWagon | SubtypeFreeWagon, InDepot: true, Stopped: true}
	if !loose.IsFreeWagon() || loose.IsPrimary() || loose.IsStoppedInDepot() {
		t.Fatalf("unexpected free wagon predicates")
	}
}

func TestGroupTemplateAndOptionNames(t *testing.T) {
	if (GroupTemplate{GroupID: 5}).HasTemplate() {
		t.Fatalf("empty association reported a template")
	}
	if !(GroupTemplate{GroupID: 5, TemplateID: 9}).HasTemplate() {
		t.Fatalf("expected association to have a template")
	}
	names := map[ReplacementOption]string{
		OptionKeepRemainders:     "keep_remainders",
		OptionRefitAsTemplate:    "refit_as_template",
		OptionReuseDepotVehicles: "reuse_depot_vehicles",
		ReplacementOption(42):    "unknown",
	}
	for opt, want := range names {
		if opt.String() != want {
			t.Fatalf("option %d: got %q want %q", opt, opt.String(), want)
		}
	}
	if ModeDryRun.String() != "dry_run" || ModeExecute.String() != "execute" {
		t.Fatalf("unexpected command mode names")
	}
}
