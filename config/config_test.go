package config_test

import (
	"os"
	"path/filepath"

	"github.com/zerbitx/lyre/config"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "lyre-config")
		Expect(err).ShouldNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
		for _, name := range []string{"PORT", "LYRE_SCAN_PATH", "LYRE_LIVE_RELOAD", "LOG_FORMAT"} {
			os.Unsetenv(name)
		}
	})

	writeConfig := func(content string) string {
		path := filepath.Join(dir, "lyre.yaml")
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	It("Falls back to defaults", func() {
		cfg, err := config.Load("")

		Expect(err).ShouldNot(HaveOccurred())
		Expect(cfg.Port).To(Equal(9000))
		Expect(cfg.ScanPath).To(Equal("./endpoints"))
		Expect(cfg.FileSuffix).To(Equal(".lyre"))
		Expect(cfg.ConfigBasePath).To(Equal("/lyreconfig"))
		Expect(cfg.LiveReload).To(BeFalse())
	})

	It("Reads the environment", func() {
		os.Setenv("LYRE_SCAN_PATH", "/srv/mocks")
		os.Setenv("LYRE_LIVE_RELOAD", "true")

		cfg, err := config.Load("")

		Expect(err).ShouldNot(HaveOccurred())
		Expect(cfg.ScanPath).To(Equal("/srv/mocks"))
		Expect(cfg.LiveReload).To(BeTrue())
	})

	It("Applies the file where the environment is silent", func() {
		os.Setenv("PORT", "9100")
		path := writeConfig("port: 9200\nscanPath: /from/file\nliveReload: true\nignore: [\"drafts/**\"]\n")

		cfg, err := config.Load(path)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(cfg.Port).To(Equal(9100))
		Expect(cfg.ScanPath).To(Equal("/from/file"))
		Expect(cfg.LiveReload).To(BeTrue())
		Expect(cfg.Ignore).To(Equal([]string{"drafts/**"}))
		Expect(cfg.FileSuffix).To(Equal(".lyre"))
	})

	It("Lets the environment win whatever the spelling in the file", func() {
		os.Setenv("PORT", "9100")
		path := writeConfig("PORT: 9200\nScanPath: /from/file\n")

		cfg, err := config.Load(path)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(cfg.Port).To(Equal(9100))
		Expect(cfg.ScanPath).To(Equal("/from/file"))
	})

	It("Rejects invalid settings", func() {
		os.Setenv("LOG_FORMAT", "xml")

		_, err := config.Load("")
		Expect(err).Should(HaveOccurred())
	})

	It("Fails on a missing file", func() {
		_, err := config.Load(filepath.Join(dir, "missing.yaml"))
		Expect(err).Should(HaveOccurred())
	})
})
