package dalcore

import (
	"reflect"
	"sync"

	"github.com/kent-id/dalcore/types"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Caches", func() {
	const workers = 64

	It("builds each entry once under concurrent first use", func() {
		engine := New()
		columns := []types.Column{{Name: "customer_id", Type: "bigint"}, {Name: "Name", Type: "varchar"}}
		names := []string{"customer_id", "Name"}
		modelType := reflect.TypeOf(customer{})

		start := make(chan struct{})
		errs := make(chan error, workers*4)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := engine.Describe(modelType)
				errs <- err
				_, err = engine.Accessors(modelType)
				errs <- err
				_, err = engine.Compile(modelType, names)
				errs <- err
				_, err = engine.Synthesize(columns)
				errs <- err
			}()
		}
		close(start)
		wg.Wait()
		close(errs)
		for err := range errs {
			Expect(err).ToNot(HaveOccurred())
		}

		stats := engine.Stats()
		Expect(stats.Descriptors.Misses).To(Equal(int64(1)))
		Expect(stats.Accessors).To(Equal(CacheStats{Hits: workers - 1, Misses: 1}))
		Expect(stats.Routines).To(Equal(CacheStats{Hits: workers - 1, Misses: 1}))
		Expect(stats.Shapes).To(Equal(CacheStats{Hits: workers - 1, Misses: 1}))
	})

	It("returns the same instance to every goroutine", func() {
		engine := New()
		got := make([]*ModelDescriptor, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got[i], _ = engine.Describe(reflect.TypeOf(order{}))
			}(i)
		}
		wg.Wait()
		for _, d := range got {
			Expect(d).ToNot(BeNil())
			Expect(d).To(BeIdenticalTo(got[0]))
		}
	})

	It("keeps an error for lookups after a panicking build", func() {
		var c onceCache[string, int]
		boom := func() (int, error) { panic("boom") }
		Expect(func() { _, _ = c.get("k", boom) }).To(PanicWith("boom"))

		_, err := c.get("k", func() (int, error) { return 1, nil })
		Expect(err).To(MatchError(ContainSubstring("boom")))
		Expect(c.stats()).To(Equal(CacheStats{Hits: 1, Misses: 1}))
	})
})
