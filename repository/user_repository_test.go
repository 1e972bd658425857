package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letDrone/internal/db"
	"letDrone/models"
)

func TestUserRepository_CreatePatientAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, p, err := f.users.CreatePatientAccount(ctx, &models.User{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, models.DefaultPatientAvatar, p.Avatar)

	got, err := f.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h", got.PasswordHash)
	assert.False(t, got.CreatedAt.IsZero())

	// A duplicate username rolls back the whole account.
	_, _, err = f.users.CreatePatientAccount(ctx, &models.User{Username: "alice"})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
	list, err := f.patients.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	missing, err := f.users.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_UpdateAndStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.Create(ctx, &models.User{Username: "root"})
	require.NoError(t, err)
	u.Email = "root@example.com"
	require.NoError(t, f.users.Update(ctx, u))
	require.NoError(t, f.users.SetStaff(ctx, u.ID, true))

	got, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", got.Email)
	assert.True(t, got.IsStaff)

	users, err := f.users.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUserRepository_DeleteCascadesAndClearsReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, pat := f.patient(t, "alice")
	pharm, err := f.users.Create(ctx, &models.User{Username: "pharm"})
	require.NoError(t, err)
	_, err = f.pharmacists.Create(ctx, &models.Pharmacist{UserID: pharm.ID})
	require.NoError(t, err)

	p := f.prescription(t, pat.ID, models.DeliveryOptionPickup, nil)
	root, err := f.comments.Create(ctx, &models.Comment{PrescriptionID: p.ID, Content: "looks fine", AuthorID: pharm.ID})
	require.NoError(t, err)
	reply, err := f.comments.Create(ctx, &models.Comment{PrescriptionID: p.ID, Content: "thanks", AuthorID: pat.UserID, ParentID: &root.ID})
	require.NoError(t, err)

	require.NoError(t, f.users.Delete(ctx, pharm.ID))

	got, err := f.comments.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "reply under a deleted user's comment must go too")
	ph, err := f.pharmacists.GetByUserID(ctx, pharm.ID)
	require.NoError(t, err)
	assert.Nil(t, ph)

	// Deleting the patient's user removes the profile and prescriptions.
	require.NoError(t, f.users.Delete(ctx, pat.UserID))
	gone, err := f.prescriptions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
