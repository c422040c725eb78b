package dalcore

import (
	"bytes"
	"log"
	"os"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	Context("LoadConfig", func() {
		It("decodes all fields", func() {
			cfg, err := LoadConfig(strings.NewReader("logLevel: info\nparallelism: 4\npopulateDefaults: true\n"))
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg).To(Equal(Config{LogLevel: "info", Parallelism: 4, PopulateDefaults: true}))
		})

		It("accepts an empty document", func() {
			cfg, err := LoadConfig(strings.NewReader(""))
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg).To(Equal(Config{}))
		})

		It("rejects unknown fields", func() {
			_, err := LoadConfig(strings.NewReader("parallelsm: 4\n"))
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid values", func() {
			_, err := LoadConfig(strings.NewReader("logLevel: loud\n"))
			Expect(err).To(MatchError(ContainSubstring("unknown log level")))
			_, err = LoadConfig(strings.NewReader("parallelism: -2\n"))
			Expect(err).To(MatchError(ContainSubstring("must not be negative")))
		})
	})

	Context("Options", func() {
		It("clamps parallelism", func() {
			Expect(Options{}.parallelism()).To(Equal(1))
			Expect(Options{Parallelism: -3}.parallelism()).To(Equal(1))
			Expect(Options{Parallelism: 5}.parallelism()).To(Equal(5))
			Expect(Options{Parallelism: 64}.parallelism()).To(Equal(MaxParallelism))
		})

		It("applies options in order", func() {
			e := New(WithParallelism(2), WithPopulateDefaults(true), WithParallelism(3))
			Expect(e.Options()).To(Equal(Options{Parallelism: 3, PopulateDefaults: true}))
		})

		It("shares one default engine", func() {
			Expect(DefaultEngine()).To(BeIdenticalTo(DefaultEngine()))
			Expect(DefaultEngine().Options()).To(Equal(Options{}))
		})

		It("applies a loaded config", func() {
			defer SetLogLevel(LogLevelWarn)
			e := New(WithConfig(Config{LogLevel: "error", Parallelism: 6, PopulateDefaults: true}))
			Expect(e.Options()).To(Equal(Options{Parallelism: 6, PopulateDefaults: true}))
			Expect(LogLevel(logLevel.Load())).To(Equal(LogLevelError))
		})
	})

	Context("logging", func() {
		var buf bytes.Buffer
		BeforeEach(func() {
			buf.Reset()
			SetLogger(log.New(&buf, "", 0))
		})
		AfterEach(func() {
			SetLogger(log.New(os.Stderr, "", log.LstdFlags))
			SetLogLevel(LogLevelWarn)
		})

		It("filters below the configured level", func() {
			SetLogLevel(LogLevelWarn)
			LogInfof("hidden %d", 1)
			LogWarnf("shown %d", 2)
			LogErrorf("shown %d", 3)
			Expect(buf.String()).To(Equal("dalcore.warn: shown 2\ndalcore.error: shown 3\n"))
		})

		It("logs debug output when enabled", func() {
			SetLogLevel(LogLevelDebug)
			LogDebugf("x=%s", "y")
			Expect(buf.String()).To(Equal("dalcore.debug: x=y\n"))
		})

		It("parses level names", func() {
			lv, err := ParseLogLevel(" Warning ")
			Expect(err).ToNot(HaveOccurred())
			Expect(lv).To(Equal(LogLevelWarn))
			_, err = ParseLogLevel("verbose")
			Expect(err).To(HaveOccurred())
			Expect(LogLevelInfo.String()).To(Equal("info"))
			Expect(LogLevel(9).String()).To(Equal("unknown"))
		})
	})
})
