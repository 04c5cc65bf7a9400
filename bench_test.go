package hashtable

import (
	"fmt"
	"io"
	"strconv"
	"testing"
)

func BenchmarkMapGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetHit))
	b.Run("impl=flat16", benchSizes(benchmarkFlat16GetHit))
	b.Run("impl=robin32", benchSizes(benchmarkRobin32GetHit))
}

func BenchmarkMapGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetMiss))
	b.Run("impl=flat16", benchSizes(benchmarkFlat16GetMiss))
	b.Run("impl=robin32", benchSizes(benchmarkRobin32GetMiss))
}

func BenchmarkMapPutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutGrow))
	b.Run("impl=flat16", benchSizes(benchmarkFlat16PutGrow))
	b.Run("impl=robin32", benchSizes(benchmarkRobin32PutGrow))
}

func BenchmarkMapPutPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutPreAllocate))
	b.Run("impl=flat16", benchSizes(benchmarkFlat16PutPreAllocate))
	b.Run("impl=robin32", benchSizes(benchmarkRobin32PutPreAllocate))
}

func BenchmarkMapPutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutDelete))
	b.Run("impl=flat16", benchSizes(benchmarkFlat16PutDelete))
	b.Run("impl=robin32", benchSizes(benchmarkRobin32PutDelete))
}

func BenchmarkMapIter(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapIter))
	b.Run("impl=flat16", benchSizes(benchmarkFlat16Iter))
	b.Run("impl=robin32", benchSizes(benchmarkRobin32Iter))
}

func benchSizes(f func(b *testing.B, n int)) func(*testing.B) {
	cases := []int{6, 12, 18, 24, 30, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 1 << 16}
	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n) })
		}
	}
}

func genBenchKeys(start, end int) []uint32 {
	keys := make([]uint32, end-start)
	for i := range keys {
		keys[i] = uint32(start + i)
	}
	return keys
}

func benchmarkRuntimeMapGetHit(b *testing.B, n int) {
	m := make(map[uint32]uint32, n)
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[keys[i%n]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkFlat16GetHit(b *testing.B, n int) {
	m := newUint32Map(WithCapacity[uint32, uint32](n))
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m.Insert(k, k)
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = m.Contains(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRobin32GetHit(b *testing.B, n int) {
	m := newRobinUint32Map(WithRobinCapacity[uint32, uint32](n))
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m.Insert(k, k)
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = m.Contains(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetMiss(b *testing.B, n int) {
	m := make(map[uint32]uint32, n)
	keys := genBenchKeys(0, n)
	miss := genBenchKeys(int(uint32Max-uint32(n)), int(uint32Max))
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[miss[i%len(miss)]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkFlat16GetMiss(b *testing.B, n int) {
	m := newUint32Map(WithCapacity[uint32, uint32](n))
	keys := genBenchKeys(0, n)
	miss := genBenchKeys(int(uint32Max-uint32(n)), int(uint32Max))
	for _, k := range keys {
		m.Insert(k, k)
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = m.Contains(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRobin32GetMiss(b *testing.B, n int) {
	m := newRobinUint32Map(WithRobinCapacity[uint32, uint32](n))
	keys := genBenchKeys(0, n)
	miss := genBenchKeys(int(uint32Max-uint32(n)), int(uint32Max))
	for _, k := range keys {
		m.Insert(k, k)
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = m.Contains(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

const uint32Max = 1 << 31

func benchmarkRuntimeMapPutGrow(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[uint32]uint32)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkFlat16PutGrow(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := newUint32Map()
		for _, k := range keys {
			m.Insert(k, k)
		}
	}
}

func benchmarkRobin32PutGrow(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := newRobinUint32Map()
		for _, k := range keys {
			m.Insert(k, k)
		}
	}
}

func benchmarkRuntimeMapPutPreAllocate(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[uint32]uint32, n)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkFlat16PutPreAllocate(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := newUint32Map(WithCapacity[uint32, uint32](n))
		for _, k := range keys {
			m.Insert(k, k)
		}
	}
}

func benchmarkRobin32PutPreAllocate(b *testing.B, n int) {
	keys := genBenchKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := newRobinUint32Map(WithRobinCapacity[uint32, uint32](n))
		for _, k := range keys {
			m.Insert(k, k)
		}
	}
}

func benchmarkRuntimeMapPutDelete(b *testing.B, n int) {
	m := make(map[uint32]uint32, n)
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := keys[i%n]
		delete(m, j)
		m[j] = j
	}
}

func benchmarkFlat16PutDelete(b *testing.B, n int) {
	m := newUint32Map(WithCapacity[uint32, uint32](n))
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m.Insert(k, k)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := keys[i%n]
		m.Erase(j)
		m.Insert(j, j)
	}
}

func benchmarkRobin32PutDelete(b *testing.B, n int) {
	m := newRobinUint32Map(WithRobinCapacity[uint32, uint32](n))
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m.Insert(k, k)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := keys[i%n]
		m.Erase(j)
		m.Insert(j, j)
	}
}

func benchmarkRuntimeMapIter(b *testing.B, n int) {
	m := make(map[uint32]uint32, n)
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	var tmp uint32
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkFlat16Iter(b *testing.B, n int) {
	m := newUint32Map(WithCapacity[uint32, uint32](n))
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m.Insert(k, k)
	}
	b.ResetTimer()
	var tmp uint32
	for i := 0; i < b.N; i++ {
		m.All(func(k, v uint32) bool {
			tmp += k + v
			return true
		})
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkRobin32Iter(b *testing.B, n int) {
	m := newRobinUint32Map(WithRobinCapacity[uint32, uint32](n))
	keys := genBenchKeys(0, n)
	for _, k := range keys {
		m.Insert(k, k)
	}
	b.ResetTimer()
	var tmp uint32
	for i := 0; i < b.N; i++ {
		m.All(func(k, v uint32) bool {
			tmp += k + v
			return true
		})
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}
