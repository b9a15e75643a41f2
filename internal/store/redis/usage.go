package redis

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/MrSnakeDoc/showcase/internal/store"
)

// Usage reads INFO memory. Without a maxmemory limit Redis can grow until the host
// runs out, so the host memory total stands in as the quota.
func (s *KV) Usage(ctx context.Context) (store.Usage, error) {
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return store.Usage{}, fmt.Errorf("failed to read redis memory info: %w", err)
	}

	u, err := parseMemoryInfo(info)
	if err != nil {
		return store.Usage{}, err
	}

	if u.Quota == 0 {
		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
			u.Quota = vm.Total
		}
	}
	return u, nil
}

// parseMemoryInfo extracts used_memory and maxmemory from an INFO memory payload
func parseMemoryInfo(info string) (store.Usage, error) {
	var (
		u       store.Usage
		sawUsed bool
	)

	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch key {
		case "used_memory":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return store.Usage{}, fmt.Errorf("invalid used_memory %q: %w", val, err)
			}
			u.Used = n
			sawUsed = true
		case "maxmemory":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return store.Usage{}, fmt.Errorf("invalid maxmemory %q: %w", val, err)
			}
			u.Quota = n
		}
	}

	if !sawUsed {
		return store.Usage{}, fmt.Errorf("used_memory missing from redis info")
	}
	return u, nil
}
