// cmd/apifunc/scan.go
package main

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
)

var (
	scanHosts       string
	scanStart       int
	scanEnd         int
	scanConcurrency int
	scanContinuous  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan hosts/ports for gRPC function services via server reflection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scanEnd < scanStart {
			return fmt.Errorf("invalid port range %d-%d", scanStart, scanEnd)
		}
		hosts := strings.Split(scanHosts, ",")
		for {
			found := scanAll(cmd.Context(), hosts)
			report(found)
			if !scanContinuous || len(found) > 0 {
				return nil
			}
			time.Sleep(2 * time.Second)
		}
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanHosts, "hosts", "H", "localhost", "comma-separated hosts to scan")
	scanCmd.Flags().IntVarP(&scanStart, "start", "s", 50000, "start of port range")
	scanCmd.Flags().IntVarP(&scanEnd, "end", "e", 50100, "end of port range")
	scanCmd.Flags().IntVarP(&scanConcurrency, "concurrency", "c", 50, "max concurrent probes")
	scanCmd.Flags().BoolVar(&scanContinuous, "continuous", false, "keep scanning until a service is found")
}

type serviceInfo struct {
	Addr     string
	Port     int
	Services []string
}

func scanAll(ctx context.Context, hosts []string) []serviceInfo {
	var (
		mu    sync.Mutex
		found []serviceInfo
		wg    sync.WaitGroup
		sem   = make(chan struct{}, scanConcurrency)
	)
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		for port := scanStart; port <= scanEnd; port++ {
			wg.Add(1)
			sem <- struct{}{}
			go func(h string, p int) {
				defer wg.Done()
				defer func() { <-sem }()
				if svcs, ok := probe(ctx, h, p); ok {
					mu.Lock()
					found = append(found, serviceInfo{Addr: h, Port: p, Services: svcs})
					mu.Unlock()
				}
			}(host, port)
		}
	}
	wg.Wait()
	sort.Slice(found, func(i, j int) bool {
		if found[i].Addr != found[j].Addr {
			return found[i].Addr < found[j].Addr
		}
		return found[i].Port < found[j].Port
	})
	return found
}

// probe does a fast TCP check first, then asks the server to list its
// services over the reflection stream.
func probe(ctx context.Context, host string, port int) ([]string, bool) {
	addr := fmt.Sprintf("%s:%d", host, port)
	c, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return nil, false
	}
	c.Close()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	stream, err := rpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, false
	}
	req := &rpb.ServerReflectionRequest{
		MessageRequest: &rpb.ServerReflectionRequest_ListServices{ListServices: ""},
	}
	if err := stream.Send(req); err != nil {
		return nil, false
	}
	resp, err := stream.Recv()
	if err != nil {
		return nil, false
	}
	list := resp.GetListServicesResponse()
	if list == nil {
		return nil, false
	}
	var svcs []string
	for _, s := range list.GetService() {
		if name := s.GetName(); name != "grpc.reflection.v1alpha.ServerReflection" &&
			name != "grpc.reflection.v1.ServerReflection" {
			svcs = append(svcs, name)
		}
	}
	return svcs, len(svcs) > 0
}

func report(found []serviceInfo) {
	if len(found) == 0 {
		fmt.Println("no gRPC services found")
		return
	}
	for _, f := range found {
		fmt.Printf("%s:%d\n", f.Addr, f.Port)
		for _, s := range f.Services {
			fmt.Printf("  %s\n", s)
		}
	}
}
