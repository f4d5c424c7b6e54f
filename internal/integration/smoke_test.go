package integration

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"grampscore/internal/blob"
	"grampscore/internal/check"
	"grampscore/internal/core"
	"grampscore/pkg/domain"
)

type backendVariant struct {
	name string
	open func(t *testing.T) domain.Backend
}

func backendVariants() []backendVariant {
	return []backendVariant{
		{
			name: "memory-store",
			open: func(t *testing.T) domain.Backend {
				b, err := core.OpenBackend(context.Background(), core.StorageConfig{Driver: core.StorageMemory})
				if err != nil {
					t.Fatalf("memory backend: %v", err)
				}
				return b
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.Backend {
				path := filepath.Join(t.TempDir(), "family.db")
				b, err := core.OpenBackend(context.Background(), core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: path})
				if err != nil {
					t.Skipf("sqlite unavailable: %v", err)
				}
				return b
			},
		},
	}
}

// TestIntegrationSmoke runs a small tree through every backend, every media
// store and the checker, with the dependency-free exporters attached.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{name: "memory-blob", open: func(_ *testing.T) blob.Store { return blob.NewMemory() }},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
		{name: "mock-s3-blob", open: func(_ *testing.T) blob.Store { return blob.NewMockS3ForTests() }},
	}

	for _, bv := range backendVariants() {
		for _, mv := range blobVariants {
			t.Run(bv.name+"/"+mv.name, func(t *testing.T) {
				metricsRecorder := core.NewExpvarMetricsRecorder("")
				var traceBuffer bytes.Buffer
				tracer := core.NewJSONTracer(&traceBuffer)
				db, err := core.Open(ctx, bv.open(t), core.WithMetricsRecorder(metricsRecorder), core.WithTracer(tracer))
				if err != nil {
					t.Fatalf("open: %v", err)
				}
				defer db.Close()

				media := mv.open(t)
				if _, err := media.Put(ctx, "scans/birth.png", strings.NewReader("png"), blob.PutOptions{ContentType: "image/png"}); err != nil {
					t.Fatalf("media put: %v", err)
				}

				var childHandle string
				err = db.RunInTransaction(ctx, "Add family", func(tx *core.Txn) error {
					scan := &domain.Media{Path: "scans/birth.png", MimeType: "image/png"}
					scanHandle, err := tx.Add(ctx, scan)
					if err != nil {
						return err
					}
					father := &domain.Person{Gender: domain.GenderMale, PrimaryName: domain.Name{FirstName: "Olaf", Surname: "Lind"}}
					mother := &domain.Person{Gender: domain.GenderFemale, PrimaryName: domain.Name{FirstName: "Greta", Surname: "Lind"}}
					child := &domain.Person{Gender: domain.GenderFemale, PrimaryName: domain.Name{FirstName: "Ines", Surname: "Lind"},
						Media: []domain.MediaRef{{Ref: scanHandle}}}
					for _, p := range []*domain.Person{father, mother, child} {
						if _, err := tx.Add(ctx, p); err != nil {
							return err
						}
					}
					fam := &domain.Family{FatherHandle: father.Handle, MotherHandle: mother.Handle, Type: domain.FamilyMarried,
						ChildRefs: []domain.ChildRef{{Ref: child.Handle}}}
					if _, err := tx.Add(ctx, fam); err != nil {
						return err
					}
					father.Families = []string{fam.Handle}
					mother.Families = []string{fam.Handle}
					child.ParentFamilies = []string{fam.Handle}
					childHandle = child.Handle
					for _, p := range []*domain.Person{father, mother, child} {
						if err := tx.Save(ctx, p); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					t.Fatalf("add family: %v", err)
				}

				rep, err := check.New(db, check.WithMediaStore(media, check.MediaKeep)).Run(ctx)
				if err != nil {
					t.Fatalf("check: %v", err)
				}
				if !rep.Clean() {
					t.Fatalf("consistent tree reported problems:\n%s", rep)
				}
				child, err := domain.FromHandle[*domain.Person](ctx, db, childHandle)
				if err != nil || child == nil || child.GrampsID != "I0002" {
					t.Fatalf("child = %+v, err %v", child, err)
				}

				if calls, errs := metricsRecorder.Calls("transaction_commit"); calls == 0 || errs != 0 {
					t.Fatalf("transaction_commit calls=%d errors=%d", calls, errs)
				}
				if traceBuffer.Len() == 0 {
					t.Fatalf("expected trace exporter to emit spans")
				}
				var foundSpan bool
				for _, entry := range tracer.Entries() {
					if entry.Operation == "add_person" && entry.Status == "ok" {
						foundSpan = true
						break
					}
				}
				if !foundSpan {
					t.Fatalf("expected trace entry for add_person, entries=%+v", tracer.Entries())
				}
			})
		}
	}
}
