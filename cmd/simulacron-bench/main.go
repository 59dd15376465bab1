// Command simulacron-bench drives a registered simulator cluster with the
// real gocql driver, measuring how many requests per second the connection
// engine can sustain under concurrent load. It is a benchmark for this
// project's own server, not a Cassandra benchmark: the primed responses
// below are canned, so the total time and sampled latencies it prints
// measure only how fast the engine answers. Row values are not checked.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/profile"

	"github.com/bjmb/simulacron-go"
	"github.com/bjmb/simulacron-go/addr"
	"github.com/bjmb/simulacron-go/bind"
	"github.com/bjmb/simulacron-go/store"
	"github.com/bjmb/simulacron-go/topology"
)

const (
	insertStmt = "INSERT INTO benchks.benchtab (pk, v1, v2) VALUES (?, ?, ?)"
	selectStmt = "SELECT v1, v2 FROM benchks.benchtab WHERE pk = ?"
	samples    = 20_000
)

type workload string

const (
	workloadInserts workload = "inserts"
	workloadSelects workload = "selects"
	workloadMixed   workload = "mixed"
)

type config struct {
	nodes       int
	concurrency int64
	tasks       int64
	batchSize   int64
	workload    workload
	profileCPU  bool
	profileMem  bool
}

func readConfig() config {
	nodes := flag.Int("nodes", 3, "number of simulated nodes to register")
	concurrency := flag.Int64("concurrency", 50, "number of concurrent client goroutines")
	tasks := flag.Int64("tasks", 200_000, "total number of primary keys to drive requests for")
	batchSize := flag.Int64("batch", 128, "number of primary keys a goroutine claims per round")
	workloadFlag := flag.String("workload", "mixed", "inserts, selects, or mixed")
	profileCPU := flag.Bool("cpuprofile", false, "enable CPU profiling")
	profileMem := flag.Bool("memprofile", false, "enable memory profiling")
	flag.Parse()

	return config{
		nodes:       *nodes,
		concurrency: *concurrency,
		tasks:       *tasks,
		batchSize:   *batchSize,
		workload:    workload(*workloadFlag),
		profileCPU:  *profileCPU,
		profileMem:  *profileMem,
	}
}

func main() {
	cfg := readConfig()
	log.Printf("Benchmark configuration: %#v\n", cfg)

	if cfg.profileCPU && cfg.profileMem {
		log.Fatal("select one profile type")
	}
	if cfg.profileCPU {
		log.Println("Running with CPU profiling")
		defer profile.Start(profile.CPUProfile).Stop()
	}
	if cfg.profileMem {
		log.Println("Running with memory profiling")
		defer profile.Start(profile.MemProfile).Stop()
	}

	server := simulacron.NewServer(simulacron.WithServerResolver(addr.NewLoopbackResolver(19042, 1000)))
	bc, err := registerCluster(server, cfg.nodes)
	if err != nil {
		log.Fatalf("registering simulated cluster: %v", err)
	}
	defer server.Unregister(bc.ID())

	primeBenchStatements(server, bc.ID())

	addresses := make([]string, 0, len(bc.NodeRefs()))
	for _, ref := range bc.NodeRefs() {
		node, _ := bc.Node(ref)
		addresses = append(addresses, node.Addr)
	}

	cluster := gocql.NewCluster(addresses...)
	cluster.Timeout = 30 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatalf("creating gocql session: %v", err)
	}
	defer session.Close()

	runBenchmark(session, cfg)
}

func registerCluster(server *simulacron.Server, nodeCount int) (*bind.BoundCluster, error) {
	cluster := topology.NewCluster("bench")
	dc := topology.NewDataCenter("dc1")
	for i := 0; i < nodeCount; i++ {
		dc.AddNode(topology.NewNode())
	}
	cluster.AddDataCenter(dc)
	return server.Register(context.Background(), cluster)
}

// primeBenchStatements installs canned responses for the two statements the
// benchmark issues; both are KindQuery matchers so they answer the
// statement whether gocql sends it as a simple Query or, once prepared, as
// an Execute (store.Matcher.Accepts treats the two the same for a
// KindQuery matcher).
func primeBenchStatements(server *simulacron.Server, clusterID int64) {
	scope := store.ForCluster(clusterID)

	server.Prime(scope, store.Matcher{
		Kind:  store.KindQuery,
		Query: insertStmt,
		Params: []store.Param{
			{Index: 0, Value: store.Wildcard},
			{Index: 1, Value: store.Wildcard},
			{Index: 2, Value: store.Wildcard},
		},
	}, store.Action{Kind: store.ActionRespond, Response: store.ResponseSpec{Kind: store.RespVoid}})

	server.Prime(scope, store.Matcher{
		Kind:  store.KindQuery,
		Query: selectStmt,
		Params: []store.Param{
			{Index: 0, Value: store.Wildcard},
		},
	}, store.Action{
		Kind: store.ActionRespond,
		Response: store.ResponseSpec{
			Kind:    store.RespRows,
			Columns: []store.ColumnSpec{{Keyspace: "benchks", Table: "benchtab", Name: "v1", Type: "bigint"}, {Keyspace: "benchks", Table: "benchtab", Name: "v2", Type: "bigint"}},
			Rows:    [][]interface{}{{int64(1), int64(2)}},
		},
	})
}

func runBenchmark(session *gocql.Session, cfg config) {
	var wg sync.WaitGroup
	nextBatchStart := int64(0)

	log.Println("Starting the benchmark")
	startTime := time.Now()

	insertCh := make(chan time.Duration, 2*samples)
	selectCh := make(chan time.Duration, 2*samples)

	for i := int64(0); i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				curBatchStart := atomic.AddInt64(&nextBatchStart, cfg.batchSize)
				if curBatchStart >= cfg.tasks {
					return
				}
				curBatchEnd := min64(curBatchStart+cfg.batchSize, cfg.tasks)

				for pk := curBatchStart; pk < curBatchEnd; pk++ {
					sample := rand.Int63n(cfg.tasks) < samples

					if cfg.workload == workloadInserts || cfg.workload == workloadMixed {
						start := time.Now()
						if err := session.Query(insertStmt, pk, 2*pk, 3*pk).Exec(); err != nil {
							log.Fatalf("insert: %v", err)
						}
						if sample {
							insertCh <- time.Since(start)
						}
					}

					if cfg.workload == workloadSelects || cfg.workload == workloadMixed {
						var v1, v2 int64
						start := time.Now()
						if err := session.Query(selectStmt, pk).Scan(&v1, &v2); err != nil {
							log.Fatalf("select: %v", err)
						}
						if sample {
							selectCh <- time.Since(start)
						}
					}
				}
			}
		}()
	}

	wg.Wait()
	benchTime := time.Since(startTime)

	fmt.Printf("time %d\n", benchTime.Milliseconds())
	printLatencies("insert", insertCh)
	printLatencies("select", selectCh)
	log.Printf("Finished\nBenchmark time: %d ms\n", benchTime.Milliseconds())
}

func printLatencies(name string, ch chan time.Duration) {
	n := len(ch)
	for i := 0; i < n; i++ {
		fmt.Printf("%s %d\n", name, (<-ch).Nanoseconds())
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
