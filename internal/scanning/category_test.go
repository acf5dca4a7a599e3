package scanning

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classifier", func() {
	var (
		classifier *Classifier
		text       string
		category   Category
	)

	BeforeEach(func() {
		var err error
		classifier, err = NewClassifier(DefaultKeywordTable())
		Expect(err).NotTo(HaveOccurred())
	})

	JustBeforeEach(func() {
		category = classifier.Classify(text)
	})

	When("a food delivery keyword is present", func() {
		BeforeEach(func() {
			text = "Swiggy order, thank you!"
		})

		It("should classify as Food", func() {
			Expect(category).To(Equal(Food))
		})

		It("should score Food above the Misc baseline", func() {
			Expect(classifier.Scores(text)).To(Equal([]Score{
				{Food, 5}, {Travel, 0}, {Shopping, 0}, {Bills, 0}, {Misc, 1},
			}))
		})
	})

	When("no keyword is present", func() {
		BeforeEach(func() {
			text = "HELLO WORLD 12.00"
		})

		It("should fall back to Misc", func() {
			Expect(category).To(Equal(Misc))
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = ""
		})

		It("should fall back to Misc", func() {
			Expect(category).To(Equal(Misc))
		})
	})

	When("a penalizing keyword is present", func() {
		BeforeEach(func() {
			text = "Bill No: 4471\nThank you"
		})

		It("should let the penalty cancel the positive keyword", func() {
			Expect(classifier.Scores(text)[3]).To(Equal(Score{Bills, -3}))
			Expect(category).To(Equal(Misc))
		})
	})

	When("a strong bills keyword is present", func() {
		BeforeEach(func() {
			text = "STATE ELECTRICITY BOARD\nBILL NO 99812"
		})

		It("should classify as Bills", func() {
			Expect(category).To(Equal(Bills))
		})
	})

	When("two categories tie", func() {
		BeforeEach(func() {
			text = "Airport taxi, then cafe"
		})

		It("should prefer the category listed first", func() {
			Expect(category).To(Equal(Food))
		})
	})

	When("a keyword repeats", func() {
		BeforeEach(func() {
			text = "tea tea tea tea"
		})

		It("should count it once", func() {
			Expect(classifier.Scores(text)[0]).To(Equal(Score{Food, 2}))
		})
	})

	When("a keyword is embedded in a longer word", func() {
		BeforeEach(func() {
			text = "Dark chocolate bar"
		})

		It("should still match", func() {
			Expect(category).To(Equal(Travel))
		})
	})

	When("the text is upper case", func() {
		BeforeEach(func() {
			text = "WALMART SUPERCENTER"
		})

		It("should match case-insensitively", func() {
			Expect(category).To(Equal(Shopping))
		})
	})

	It("should always return a known category", func() {
		for _, t := range []string{"", "uber", "amazon", "invoice", "restaurant", "???"} {
			Expect(classifier.Classify(t).Valid()).To(BeTrue())
		}
	})
})

var _ = Describe("KeywordTable", func() {
	Describe("Validate", func() {
		var (
			table KeywordTable
			err   error
		)

		JustBeforeEach(func() {
			err = table.Validate()
		})

		When("using the default table", func() {
			BeforeEach(func() {
				table = DefaultKeywordTable()
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})
		})

		When("a category is unknown", func() {
			BeforeEach(func() {
				table = KeywordTable{Categories: []CategoryRule{
					{Category: "Pets"},
					{Category: Misc, Baseline: 1},
				}}
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("unknown category")))
			})
		})

		When("a category is listed twice", func() {
			BeforeEach(func() {
				table = KeywordTable{Categories: []CategoryRule{
					{Category: Misc, Baseline: 1},
					{Category: Misc},
				}}
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("listed twice")))
			})
		})

		When("no category has a baseline", func() {
			BeforeEach(func() {
				table = KeywordTable{Categories: []CategoryRule{{Category: Food}}}
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("found 0")))
			})
		})

		When("two categories have a baseline", func() {
			BeforeEach(func() {
				table = KeywordTable{Categories: []CategoryRule{
					{Category: Food, Baseline: 1},
					{Category: Misc, Baseline: 1},
				}}
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("found 2")))
			})
		})

		When("a keyword is blank", func() {
			BeforeEach(func() {
				table = KeywordTable{Categories: []CategoryRule{
					{Category: Food, Keywords: []KeywordWeight{{Keyword: " ", Weight: 3}}},
					{Category: Misc, Baseline: 1},
				}}
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("empty keyword")))
			})
		})
	})

	Describe("LoadKeywordTable", func() {
		var (
			path  string
			table KeywordTable
			err   error
		)

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "categories.yaml")
		})

		JustBeforeEach(func() {
			table, err = LoadKeywordTable(path)
		})

		When("the file is valid", func() {
			BeforeEach(func() {
				content := `categories:
  - name: Food
    keywords:
      - keyword: Starbucks
        weight: 7
  - name: Misc
    baseline: 1
`
				Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should keep the rules in file order", func() {
				Expect(table.Categories).To(HaveLen(2))
				Expect(table.Categories[0].Category).To(Equal(Food))
				Expect(table.Categories[0].Keywords).To(Equal([]KeywordWeight{{Keyword: "Starbucks", Weight: 7}}))
			})

			It("should build a classifier that matches case-insensitively", func() {
				classifier, cErr := NewClassifier(table)
				Expect(cErr).NotTo(HaveOccurred())
				Expect(classifier.Classify("STARBUCKS #1204")).To(Equal(Food))
				Expect(classifier.Classify("uber")).To(Equal(Misc))
			})
		})

		When("the file fails validation", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(path, []byte("categories:\n  - name: Food\n"), 0644)).To(Succeed())
			})

			It("returns the error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("the file is not YAML", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(path, []byte("categories: [unclosed"), 0644)).To(Succeed())
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("parsing keyword table")))
			})
		})

		When("the file does not exist", func() {
			BeforeEach(func() {
				path = filepath.Join(GinkgoT().TempDir(), "missing.yaml")
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("reading keyword table")))
			})
		})
	})
})
