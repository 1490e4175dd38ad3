package scanner_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/zerbitx/lyre/scanner"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func writeFile(path, content string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
}

var _ = Describe("Discover", func() {
	var root string

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "lyre-discover")
		Expect(err).ShouldNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(root)
	})

	It("Finds matching files at every depth and nothing else", func() {
		var expected []string
		dir := root

		for _, level := range []string{"root", "first", "second", "third"} {
			expected = append(expected, filepath.Join(dir, "test-"+level+"-success.lyre"))
			writeFile(filepath.Join(dir, "test-"+level+"-success.lyre"), "")
			writeFile(filepath.Join(dir, "test-"+level+"-wrong-extension.ext"), "")
			dir = filepath.Join(dir, level)
		}

		files, err := scanner.Discover(root, ".lyre", nil)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(files).To(ConsistOf(expected))
	})

	It("Skips ignored files and directories", func() {
		writeFile(filepath.Join(root, "keep.lyre"), "")
		writeFile(filepath.Join(root, "skip", "deep", "gone.lyre"), "")
		writeFile(filepath.Join(root, "api", "wip.draft.lyre"), "")

		files, err := scanner.Discover(root, ".lyre", []string{"skip/**", "**/*.draft.lyre"})

		Expect(err).ShouldNot(HaveOccurred())
		Expect(files).To(Equal([]string{filepath.Join(root, "keep.lyre")}))
	})

	It("Survives symlink cycles", func() {
		writeFile(filepath.Join(root, "a", "one.lyre"), "")
		Expect(os.Symlink(root, filepath.Join(root, "a", "loop"))).To(Succeed())

		files, err := scanner.Discover(root, ".lyre", nil)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(files).To(Equal([]string{filepath.Join(root, "a", "one.lyre")}))
	})

	It("Follows symlinked directories outside the root", func() {
		outside, err := os.MkdirTemp("", "lyre-outside")
		Expect(err).ShouldNot(HaveOccurred())
		defer os.RemoveAll(outside)

		writeFile(filepath.Join(outside, "shared.lyre"), "")
		Expect(os.Symlink(outside, filepath.Join(root, "shared"))).To(Succeed())

		files, err := scanner.Discover(root, ".lyre", nil)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(files).To(Equal([]string{filepath.Join(root, "shared", "shared.lyre")}))
	})

	Context("The root cannot be scanned", func() {
		It("Fails when it does not exist", func() {
			_, err := scanner.Discover(filepath.Join(root, "missing"), ".lyre", nil)

			var se *scanner.ScanError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
		})

		It("Fails when it is a file", func() {
			file := filepath.Join(root, "file.lyre")
			writeFile(file, "")

			_, err := scanner.Discover(file, ".lyre", nil)

			var se *scanner.ScanError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Root).To(Equal(file))
		})

		It("Rejects invalid ignore patterns", func() {
			_, err := scanner.Discover(root, ".lyre", []string{"[unclosed"})

			var se *scanner.ScanError
			Expect(errors.As(err, &se)).To(BeTrue())
		})
	})
})
