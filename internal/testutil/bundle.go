package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/Veraticus/nourish/internal/artifacts"
	"github.com/Veraticus/nourish/internal/dataset"
	"github.com/Veraticus/nourish/internal/training"
)

// BundleRows is the size of the dataset fixture bundles are trained on.
const BundleRows = 60

// NewBundle trains a small model bundle on DatasetCSV(BundleRows).
//
// Example:
//
//	bundle := testutil.NewBundle(t)
//	ictx, err := inference.NewContext(bundle)
func NewBundle(t testing.TB, oneHot ...string) *artifacts.Bundle {
	t.Helper()

	ds, err := dataset.Read(strings.NewReader(DatasetCSV(BundleRows)))
	if err != nil {
		t.Fatalf("failed to read fixture dataset: %v", err)
	}

	opts := training.DefaultOptions()
	opts.Trees = 8
	opts.Workers = 2
	opts.OneHot = oneHot
	res, err := training.Train(context.Background(), ds, opts)
	if err != nil {
		t.Fatalf("failed to train fixture bundle: %v", err)
	}
	return res.Bundle
}

// WriteBundle saves NewBundle(t) to a temporary directory and returns it.
func WriteBundle(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	if err := artifacts.Save(dir, NewBundle(t)); err != nil {
		t.Fatalf("failed to save fixture bundle: %v", err)
	}
	return dir
}
