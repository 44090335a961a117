package resolver_test

import (
	"testing"

	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/remote"
	"github.com/jonmartinstorm/repospeiler/internal/resolver"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestResolver(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Resolver Suite")
}

var _ = Describe("Resolve", func() {
	var cfg resolver.Config

	BeforeEach(func() {
		cfg = resolver.Config{
			Strategy:   resolver.Preserve{},
			TargetUser: "speiler",
			StarredOrg: "starred",
		}
	})

	It("skal sende stjernemerkede repos til starred-organisasjonen uansett overstyringer", func() {
		repo := models.Repository{
			FullName:            "noen/verktoy",
			Organization:        "noen",
			Starred:             true,
			DestinationOverride: "et-annet-sted",
		}
		dest, err := resolver.Resolve(repo, "org-overstyring", cfg)
		Expect(err).To(BeNil())
		Expect(dest).To(Equal("starred"))
	})

	It("skal feile med konfigurasjonsfeil når starred-organisasjonen mangler", func() {
		cfg.StarredOrg = ""
		repo := models.Repository{FullName: "noen/verktoy", Starred: true}
		_, err := resolver.Resolve(repo, "", cfg)
		var cerr *remote.ConfigurationError
		Expect(err).To(BeAssignableToTypeOf(cerr))
		Expect(err.Error()).To(ContainSubstring("STARRED_ORG"))
	})

	It("skal la repo-overstyring vinne over organisasjonsoverstyring", func() {
		repo := models.Repository{
			FullName:            "acme/api",
			Organization:        "acme",
			DestinationOverride: "spesial",
		}
		dest, err := resolver.Resolve(repo, "acme-speil", cfg)
		Expect(err).To(BeNil())
		Expect(dest).To(Equal("spesial"))
	})

	It("skal bruke organisasjonsoverstyringen når repoet ikke har egen", func() {
		repo := models.Repository{FullName: "acme/api", Organization: "acme"}
		dest, err := resolver.Resolve(repo, "acme-speil", cfg)
		Expect(err).To(BeNil())
		Expect(dest).To(Equal("acme-speil"))
	})

	It("skal ignorere organisasjonsoverstyring for personlige repos", func() {
		repo := models.Repository{FullName: "per/dotfiles", Organization: ""}
		dest, err := resolver.Resolve(repo, "acme-speil", cfg)
		Expect(err).To(BeNil())
		Expect(dest).To(Equal("speiler"))
	})

	Describe("strategiene", func() {
		orgRepo := models.Repository{FullName: "acme/api", Organization: "acme"}
		personalRepo := models.Repository{FullName: "per/dotfiles"}

		It("preserve skal beholde kildeorganisasjonen", func() {
			dest, err := resolver.Resolve(orgRepo, "", cfg)
			Expect(err).To(BeNil())
			Expect(dest).To(Equal("acme"))
		})

		It("preserve skal legge personlige repos under target-kontoen", func() {
			dest, err := resolver.Resolve(personalRepo, "", cfg)
			Expect(err).To(BeNil())
			Expect(dest).To(Equal("speiler"))
		})

		It("single-org skal samle alt under én organisasjon", func() {
			cfg.Strategy = resolver.SingleOrg{Org: "mirrors"}
			for _, repo := range []models.Repository{orgRepo, personalRepo} {
				dest, err := resolver.Resolve(repo, "", cfg)
				Expect(err).To(BeNil())
				Expect(dest).To(Equal("mirrors"))
			}
		})

		It("single-org uten organisasjon skal gi konfigurasjonsfeil", func() {
			cfg.Strategy = resolver.SingleOrg{}
			_, err := resolver.Resolve(orgRepo, "", cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("SINGLE_ORG"))
		})

		It("flat-user skal legge alt under target-kontoen", func() {
			cfg.Strategy = resolver.FlatUser{}
			for _, repo := range []models.Repository{orgRepo, personalRepo} {
				dest, err := resolver.Resolve(repo, "", cfg)
				Expect(err).To(BeNil())
				Expect(dest).To(Equal("speiler"))
			}
		})

		It("mixed skal beholde organisasjoner og samle personlige repos", func() {
			cfg.Strategy = resolver.Mixed{PersonalOrg: "personal"}

			dest, err := resolver.Resolve(orgRepo, "", cfg)
			Expect(err).To(BeNil())
			Expect(dest).To(Equal("acme"))

			dest, err = resolver.Resolve(personalRepo, "", cfg)
			Expect(err).To(BeNil())
			Expect(dest).To(Equal("personal"))
		})

		It("mixed uten personal-organisasjon skal gi konfigurasjonsfeil", func() {
			cfg.Strategy = resolver.Mixed{}
			_, err := resolver.Resolve(personalRepo, "", cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("PERSONAL_ORG"))
		})
	})
})
