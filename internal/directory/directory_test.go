// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/bahadhay/encadri-tui/internal/api"
)

type fakeProjects struct {
	projects []api.Project
	err      error
	calls    int
}

func (f *fakeProjects) ProjectsForUser(_ context.Context, email string) ([]api.Project, error) {
	f.calls++
	return f.projects, f.err
}

func twoProjects() []api.Project {
	return []api.Project{
		{
			ID:         "p1",
			Title:      "Thesis A",
			Supervisor: api.Member{Email: "prof@x.com", Name: "Prof Lee", Role: "supervisor"},
			Students: []api.Member{
				{Email: "sam@x.com", Name: "Sam"},
				{Email: "ana@x.com", Name: "Ana"},
			},
		},
		{
			ID:         "p2",
			Title:      "Thesis B",
			Supervisor: api.Member{Email: "prof@x.com", Name: "Prof Lee", Role: "supervisor"},
			Students:   []api.Member{{Email: "sam@x.com", Name: "Sam"}},
		},
	}
}

func TestDirectory_RefreshDerivesPartners(t *testing.T) {
	svc := &fakeProjects{projects: twoProjects()}
	dir := New(svc, "sam@x.com")

	if err := dir.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	partners := dir.Partners()
	if len(partners) != 2 {
		t.Fatalf("partners = %v, want 2 (self excluded, duplicates merged)", partners)
	}
	// Sorted by name: Ana before Prof Lee.
	if partners[0].Email != "ana@x.com" || partners[1].Email != "prof@x.com" {
		t.Errorf("order = %v", partners)
	}
	// Prof appears in both projects.
	if len(partners[1].Projects) != 2 {
		t.Errorf("prof projects = %v, want both", partners[1].Projects)
	}
}

func TestDirectory_RefreshErrorKeepsList(t *testing.T) {
	svc := &fakeProjects{projects: twoProjects()}
	dir := New(svc, "sam@x.com")
	if err := dir.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	svc.err = errors.New("backend down")
	if err := dir.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(dir.Partners()) != 2 {
		t.Error("partner list should survive a failed refresh")
	}
}

func TestDirectory_SetActive(t *testing.T) {
	svc := &fakeProjects{projects: twoProjects()}
	dir := New(svc, "sam@x.com")
	if err := dir.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if !dir.SetActive("Prof@X.com") {
		t.Fatal("SetActive should accept a known partner, case-insensitively")
	}
	active, ok := dir.Active()
	if !ok || active.Email != "prof@x.com" {
		t.Errorf("active = %v, %v", active, ok)
	}
	if got := dir.ActiveRoomID(); got != "prof@x.com_sam@x.com" {
		t.Errorf("ActiveRoomID = %q", got)
	}

	if dir.SetActive("stranger@x.com") {
		t.Error("SetActive must reject emails outside the directory")
	}

	dir.ClearActive()
	if _, ok := dir.Active(); ok {
		t.Error("Active after ClearActive should be empty")
	}
	if dir.ActiveRoomID() != "" {
		t.Error("ActiveRoomID after ClearActive should be empty")
	}
}

func TestDirectory_ActiveClearedWhenPartnerRemoved(t *testing.T) {
	svc := &fakeProjects{projects: twoProjects()}
	dir := New(svc, "sam@x.com")
	if err := dir.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !dir.SetActive("ana@x.com") {
		t.Fatal("SetActive failed")
	}

	// Ana leaves the project.
	svc.projects = []api.Project{{
		ID:         "p1",
		Supervisor: api.Member{Email: "prof@x.com", Name: "Prof Lee"},
		Students:   []api.Member{{Email: "sam@x.com", Name: "Sam"}},
	}}
	if err := dir.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, ok := dir.Active(); ok {
		t.Error("active selection should be cleared when the partner disappears")
	}
}
