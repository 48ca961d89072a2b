package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/yourorg/taskhub/internal/domain"
)

func TestTransformUser(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		row  UserRow
		want *domain.User
	}{
		{
			name: "assigned user passes through",
			row: UserRow{
				ID:         "u1",
				Name:       "Ada",
				Email:      "ada@example.com",
				Role:       "admin",
				BusinessID: sql.NullString{String: "b1", Valid: true},
				CreatedAt:  created,
			},
			want: &domain.User{
				ID:         "u1",
				Name:       "Ada",
				Email:      "ada@example.com",
				Role:       domain.RoleAdmin,
				BusinessID: "b1",
				CreatedAt:  created,
			},
		},
		{
			name: "null business normalizes to empty string",
			row: UserRow{
				ID:        "u2",
				Name:      "Ben",
				Email:     "ben@example.com",
				Role:      "staff",
				CreatedAt: created,
			},
			want: &domain.User{
				ID:        "u2",
				Name:      "Ben",
				Email:     "ben@example.com",
				Role:      domain.RoleStaff,
				BusinessID: "",
				CreatedAt:  created,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransformUser(tt.row)
			if *got != *tt.want {
				t.Errorf("TransformUser() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransformUserUnassigned(t *testing.T) {
	u := TransformUser(UserRow{ID: "u3", BusinessID: sql.NullString{}})
	if u.Assigned() {
		t.Error("user with NULL business_id should not be assigned")
	}
}
