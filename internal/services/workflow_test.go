package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxfiler/kyc-ocr-service/internal/db"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

var twoDocs = map[string][]string{
	models.CategorySalaried: {"PAN Card", "Aadhaar Card"},
}

func seedCase(t *testing.T, store CaseStore, id string, docs ...models.Document) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateCase(ctx, &models.Case{
		ID:                 id,
		ClientName:         "Ramesh Kumar",
		Category:           models.CategorySalaried,
		Status:             models.CaseOnboarded,
		VerificationStatus: models.StatusPending,
	}))
	for _, d := range docs {
		require.NoError(t, store.UpsertDocument(ctx, id, d))
	}
}

func TestDefaultRequiredDocuments(t *testing.T) {
	w := NewWorkflow(db.NewMemoryStore(), nil, true)

	assert.Equal(t, []string{"PAN Card", "Aadhaar Card", "Form 16", "Passbook"}, w.RequiredDocuments(models.CategorySalaried))
	assert.Len(t, w.RequiredDocuments(models.CategorySmallBusiness), 6)
	assert.Nil(t, w.RequiredDocuments("freelancer"))
}

func TestReadiness(t *testing.T) {
	w := NewWorkflow(db.NewMemoryStore(), twoDocs, true)

	c := &models.Case{ID: "c1", Category: models.CategorySalaried}
	r := w.Readiness(c)
	assert.False(t, r.Ready)
	assert.False(t, r.Verified)
	require.Len(t, r.Requirements, 2)
	assert.False(t, r.Requirements[0].Uploaded)

	c.Documents = []models.Document{
		verifiedDoc("PAN Card", "RAMESH KUMAR", "01/01/1990"),
		{Name: "Aadhaar Card", Verification: models.PendingResult()},
	}
	r = w.Readiness(c)
	assert.True(t, r.Ready)
	assert.False(t, r.Verified)
	assert.Equal(t, models.StatusPending, r.Requirements[1].Status)

	c.Documents[1] = verifiedDoc("Aadhaar Card", "RAMESH KUMAR", "01/01/1990")
	assert.True(t, w.Readiness(c).Verified)

	unknown := w.Readiness(&models.Case{Category: "freelancer"})
	assert.False(t, unknown.Ready)
	assert.Empty(t, unknown.Requirements)
}

func TestAdvance(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	w := NewWorkflow(store, twoDocs, true)

	seedCase(t, store, "ready",
		verifiedDoc("PAN Card", "RAMESH KUMAR", "01/01/1990"),
		verifiedDoc("Aadhaar Card", "RAMESH KUMAR", "01/01/1990"),
	)
	moved, err := w.Advance(ctx, "ready")
	require.NoError(t, err)
	assert.True(t, moved)
	c, _ := store.GetCase(ctx, "ready")
	assert.Equal(t, models.CaseITRFiling, c.Status)

	// already past documentation
	moved, err = w.Advance(ctx, "ready")
	require.NoError(t, err)
	assert.False(t, moved)

	seedCase(t, store, "incomplete", verifiedDoc("PAN Card", "RAMESH KUMAR", "01/01/1990"))
	moved, err = w.Advance(ctx, "incomplete")
	require.NoError(t, err)
	assert.False(t, moved)

	seedCase(t, store, "flagged",
		verifiedDoc("PAN Card", "RAMESH KUMAR", "01/01/1990"),
		verifiedDoc("Aadhaar Card", "RAMESH KUMAR", "01/01/1990"),
	)
	require.NoError(t, store.SetCaseVerification(ctx, "flagged", models.StatusFlagged))
	moved, err = w.Advance(ctx, "flagged")
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = w.Advance(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestIsIdentityDocument(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"PAN Card", true},
		{"pan", true},
		{"Aadhaar Card", true},
		{"Aadhar", true},
		{"Form 16", false},
		{"Passbook", false},
		{"Company Balance Sheet", false},
		{"TDS Monthly Challan", false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIdentityDocument(tt.label))
		})
	}
}

func TestAdvanceDefaultChecklist(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	w := NewWorkflow(store, nil, true)

	passbook := models.Document{Name: "Passbook", Verification: models.VerificationResult{Status: models.StatusFlagged}}
	form16 := models.Document{Name: "Form 16", Verification: models.PendingResult()}

	seedCase(t, store, "salaried",
		verifiedDoc("PAN Card", "RAMESH KUMAR", "01/01/1990"),
		verifiedDoc("Aadhaar Card", "RAMESH KUMAR", "01/01/1990"),
		form16,
		passbook,
	)
	c, err := store.GetCase(ctx, "salaried")
	require.NoError(t, err)
	r := w.Readiness(c)
	assert.True(t, r.Ready)
	assert.True(t, r.Verified)
	require.Len(t, r.Requirements, 4)
	assert.True(t, r.Requirements[0].Identity)
	assert.False(t, r.Requirements[3].Identity)

	moved, err := w.Advance(ctx, "salaried")
	require.NoError(t, err)
	assert.True(t, moved)

	// identity documents still gate the case
	flaggedPAN := verifiedDoc("PAN Card", "RAMESH KUMAR", "01/01/1990")
	flaggedPAN.Verification.Status = models.StatusFlagged
	seedCase(t, store, "unverified-pan",
		flaggedPAN,
		verifiedDoc("Aadhaar Card", "RAMESH KUMAR", "01/01/1990"),
		form16,
		passbook,
	)
	moved, err = w.Advance(ctx, "unverified-pan")
	require.NoError(t, err)
	assert.False(t, moved)

	seedCase(t, store, "no-passbook",
		verifiedDoc("PAN Card", "RAMESH KUMAR", "01/01/1990"),
		verifiedDoc("Aadhaar Card", "RAMESH KUMAR", "01/01/1990"),
		form16,
	)
	moved, err = w.Advance(ctx, "no-passbook")
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestAdvanceDisabled(t *testing.T) {
	store := db.NewMemoryStore()
	seedCase(t, store, "c1",
		verifiedDoc("PAN Card", "RAMESH KUMAR", "01/01/1990"),
		verifiedDoc("Aadhaar Card", "RAMESH KUMAR", "01/01/1990"),
	)

	moved, err := NewWorkflow(store, twoDocs, false).Advance(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, moved)
}
