package rvaindex_test

import (
	"fmt"
	"io/ioutil"
	"os"
	"sync"

	"github.com/bsm/rvaindex"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("LockedReader", func() {
	var subject *rvaindex.LockedReader
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = ioutil.TempDir("", "rvaindex-test")
		Expect(err).NotTo(HaveOccurred())

		p1, p2, err := lookupFixture().write(dir)
		Expect(err).NotTo(HaveOccurred())

		r, err := rvaindex.Open(p1, p2)
		Expect(err).NotTo(HaveOccurred())
		subject = rvaindex.LockReader(r)
	})

	AfterEach(func() {
		if subject != nil {
			_ = subject.Close()
			subject = nil
		}
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should delegate", func() {
		Expect(subject.NumBlocks()).To(Equal(3))
		Expect(subject.TotalLines()).To(Equal(uint32(4242)))
		Expect(subject.FindFloor(0x1040)).To(Equal(uint32(12)))

		_, err := subject.FindFloor(0xFFF)
		Expect(err).To(MatchError(rvaindex.ErrNotFound))
	})

	It("should allow concurrent lookups", func() {
		want := map[uint64]uint32{
			0x1000: 10,
			0x1040: 12,
			0x2000: 20, // boundary fallback
			0x2500: 30,
			0x9000: 33, // boundary fallback
			0x9008: 91,
		}

		var wg sync.WaitGroup
		failures := make(chan error, 8*len(want))

		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				for rva, line := range want {
					got, err := subject.FindFloor(rva)
					if err != nil {
						failures <- err
					} else if got != line {
						failures <- fmt.Errorf("got line %d for RVA %#x, want %d", got, rva, line)
					}
				}
			}()
		}
		wg.Wait()
		close(failures)

		var collected []error
		for err := range failures {
			collected = append(collected, err)
		}
		Expect(collected).To(BeEmpty())
	})

	It("should close", func() {
		Expect(subject.Close()).To(Succeed())

		_, err := subject.FindFloor(0x1000)
		Expect(err).To(MatchError("rvaindex: is closed"))
	})
})
