package cleanup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/jonmartinstorm/repospeiler/internal/cleanup"
	"github.com/jonmartinstorm/repospeiler/internal/config"
	"github.com/jonmartinstorm/repospeiler/internal/events"
	"github.com/jonmartinstorm/repospeiler/internal/mocks"
	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/remote"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCleanup(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cleanup Suite")
}

var _ = Describe("Service.RunOnce", func() {
	var (
		ctx context.Context
		cfg config.Config
		src *mocks.MockSource
		tgt *mocks.MockTarget
		st  *mocks.MockStore
		svc *cleanup.Service
	)

	mirrored := []models.Repository{
		{ID: 1, Name: "levende", FullName: "acme/levende", Status: models.StatusSynced, MirroredLocation: "mirrors/levende"},
		{ID: 2, Name: "borte", FullName: "acme/borte", Status: models.StatusSynced, MirroredLocation: "mirrors/borte"},
	}
	sourceSet := []models.Repository{
		{ID: 1, Name: "levende", FullName: "acme/levende"},
	}

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.Config{
			Name: "test",
			Cleanup: config.CleanupPolicy{
				Enabled:     true,
				Disposition: config.DispositionSkip,
			},
		}
		src = &mocks.MockSource{}
		tgt = &mocks.MockTarget{}
		st = &mocks.MockStore{}
		svc = cleanup.NewService(cfg, src, tgt, st, events.SlogEmitter{})
	})

	It("skal avbryte hele kjøringen når kilde-kontoen er utilgjengelig", func() {
		src.On("ListAllRepos", ctx, false, false).
			Return(nil, &remote.PermissionError{Resource: "kontoen"})

		orphans, err := svc.RunOnce(ctx)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("utilgjengelig"))
		Expect(orphans).To(Equal(0))
		tgt.AssertNotCalled(GinkgoT(), "ArchiveRepo", mock.Anything, mock.Anything, mock.Anything)
		tgt.AssertNotCalled(GinkgoT(), "DeleteRepo", mock.Anything, mock.Anything, mock.Anything)
	})

	It("skal bare registrere orphans med disposisjon skip", func() {
		src.On("ListAllRepos", ctx, false, false).Return(sourceSet, nil)
		st.On("ListReposByStatus", ctx, models.StatusTransferred, models.StatusSyncing, models.StatusSynced).
			Return(mirrored, nil)

		orphans, err := svc.RunOnce(ctx)
		Expect(err).To(BeNil())
		Expect(orphans).To(Equal(1))
		tgt.AssertNotCalled(GinkgoT(), "ArchiveRepo", mock.Anything, mock.Anything, mock.Anything)
		tgt.AssertNotCalled(GinkgoT(), "DeleteRepo", mock.Anything, mock.Anything, mock.Anything)
	})

	It("skal ikke røre target i dry-run, uansett disposisjon", func() {
		cfg.Cleanup.Disposition = config.DispositionDelete
		cfg.Cleanup.DryRun = true
		svc = cleanup.NewService(cfg, src, tgt, st, events.SlogEmitter{})

		src.On("ListAllRepos", ctx, false, false).Return(sourceSet, nil)
		st.On("ListReposByStatus", ctx, models.StatusTransferred, models.StatusSyncing, models.StatusSynced).
			Return(mirrored, nil)

		orphans, err := svc.RunOnce(ctx)
		Expect(err).To(BeNil())
		Expect(orphans).To(Equal(1))
		tgt.AssertNotCalled(GinkgoT(), "DeleteRepo", mock.Anything, mock.Anything, mock.Anything)
		st.AssertNotCalled(GinkgoT(), "DeleteRepo", mock.Anything, mock.Anything)
	})

	It("skal arkivere orphans med disposisjon archive", func() {
		cfg.Cleanup.Disposition = config.DispositionArchive
		svc = cleanup.NewService(cfg, src, tgt, st, events.SlogEmitter{})

		src.On("ListAllRepos", ctx, false, false).Return(sourceSet, nil)
		st.On("ListReposByStatus", ctx, models.StatusTransferred, models.StatusSyncing, models.StatusSynced).
			Return(mirrored, nil)
		tgt.On("ArchiveRepo", ctx, "mirrors", "borte").Return(nil)
		st.On("UpdateRepoStatus", ctx, int64(2), models.StatusArchived, mock.AnythingOfType("string")).Return(nil)

		orphans, err := svc.RunOnce(ctx)
		Expect(err).To(BeNil())
		Expect(orphans).To(Equal(1))
		tgt.AssertCalled(GinkgoT(), "ArchiveRepo", ctx, "mirrors", "borte")
	})

	It("skal slette orphans med disposisjon delete når dry-run er av", func() {
		cfg.Cleanup.Disposition = config.DispositionDelete
		cfg.Cleanup.DryRun = false
		svc = cleanup.NewService(cfg, src, tgt, st, events.SlogEmitter{})

		src.On("ListAllRepos", ctx, false, false).Return(sourceSet, nil)
		st.On("ListReposByStatus", ctx, models.StatusTransferred, models.StatusSyncing, models.StatusSynced).
			Return(mirrored, nil)
		tgt.On("DeleteRepo", ctx, "mirrors", "borte").Return(nil)
		st.On("DeleteRepo", ctx, int64(2)).Return(nil)

		orphans, err := svc.RunOnce(ctx)
		Expect(err).To(BeNil())
		Expect(orphans).To(Equal(1))
		tgt.AssertCalled(GinkgoT(), "DeleteRepo", ctx, "mirrors", "borte")
		st.AssertCalled(GinkgoT(), "DeleteRepo", ctx, int64(2))
	})

	It("skal aldri røre beskyttede repos", func() {
		cfg.Cleanup.Disposition = config.DispositionDelete
		cfg.Cleanup.DryRun = false
		cfg.Cleanup.Protected = []string{"acme/borte"}
		svc = cleanup.NewService(cfg, src, tgt, st, events.SlogEmitter{})

		src.On("ListAllRepos", ctx, false, false).Return(sourceSet, nil)
		st.On("ListReposByStatus", ctx, models.StatusTransferred, models.StatusSyncing, models.StatusSynced).
			Return(mirrored, nil)

		orphans, err := svc.RunOnce(ctx)
		Expect(err).To(BeNil())
		Expect(orphans).To(Equal(1))
		tgt.AssertNotCalled(GinkgoT(), "DeleteRepo", mock.Anything, mock.Anything, mock.Anything)
	})

	It("skal tåle at speilet allerede er borte fra target", func() {
		cfg.Cleanup.Disposition = config.DispositionArchive
		svc = cleanup.NewService(cfg, src, tgt, st, events.SlogEmitter{})

		src.On("ListAllRepos", ctx, false, false).Return(sourceSet, nil)
		st.On("ListReposByStatus", ctx, models.StatusTransferred, models.StatusSyncing, models.StatusSynced).
			Return(mirrored, nil)
		tgt.On("ArchiveRepo", ctx, "mirrors", "borte").
			Return(&remote.NotFoundError{Resource: "mirrors/borte"})
		st.On("UpdateRepoStatus", ctx, int64(2), models.StatusArchived, mock.AnythingOfType("string")).Return(nil)

		orphans, err := svc.RunOnce(ctx)
		Expect(err).To(BeNil())
		Expect(orphans).To(Equal(1))
		st.AssertCalled(GinkgoT(), "UpdateRepoStatus", ctx, int64(2), models.StatusArchived, mock.AnythingOfType("string"))
	})
})
