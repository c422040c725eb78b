package athena

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/kent-id/dalcore"
	"github.com/kent-id/dalcore/util"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeQueryAPI serves canned pages. The first page starts with the header row.
type fakeQueryAPI struct {
	mu         sync.Mutex
	states     []athenatypes.QueryExecutionState
	reason     string
	pages      []*athenatypes.ResultSet
	startErr   error
	started    []*athena.StartQueryExecutionInput
	pageTokens []*string
}

func (f *fakeQueryAPI) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, in)
	return &athena.StartQueryExecutionOutput{QueryExecutionId: util.RefString("qid-1")}, nil
}

func (f *fakeQueryAPI) GetQueryExecution(_ context.Context, _ *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return &athena.GetQueryExecutionOutput{QueryExecution: &athenatypes.QueryExecution{
		Status: &athenatypes.QueryExecutionStatus{State: state, StateChangeReason: util.RefString(f.reason)},
	}}, nil
}

func (f *fakeQueryAPI) GetQueryResults(_ context.Context, in *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageTokens = append(f.pageTokens, in.NextToken)
	page := len(f.pageTokens) - 1
	out := &athena.GetQueryResultsOutput{ResultSet: f.pages[page]}
	if page+1 < len(f.pages) {
		out.NextToken = util.RefString("token")
	}
	return out, nil
}

type computer struct {
	ID       int64  `dal:"id"`
	Hostname string `dal:"hostname"`
}

func page(rows ...[]string) *athenatypes.ResultSet {
	rs := &athenatypes.ResultSet{
		ResultSetMetadata: &athenatypes.ResultSetMetadata{ColumnInfo: []athenatypes.ColumnInfo{
			columnInfo("id", athenaTypeBigInt), columnInfo("hostname", athenaTypeString),
		}},
	}
	for _, r := range rows {
		rs.Rows = append(rs.Rows, athenatypes.Row{Data: []athenatypes.Datum{datum(r[0]), datum(r[1])}})
	}
	return rs
}

var _ = Describe("AthenaClientV2", func() {
	var (
		ctx    context.Context
		api    *fakeQueryAPI
		client *athenaClientV2
	)
	BeforeEach(func() {
		ctx = context.Background()
		api = &fakeQueryAPI{
			states: []athenatypes.QueryExecutionState{
				athenatypes.QueryExecutionStateQueued,
				athenatypes.QueryExecutionStateRunning,
				athenatypes.QueryExecutionStateSucceeded,
			},
			pages: []*athenatypes.ResultSet{
				page([]string{"id", "hostname"}, []string{"1", "alpha"}),
				page([]string{"2", "beta"}),
			},
		}
		client = NewClientWithAPI(api, "primary", "inventory", "AwsDataCatalog", dalcore.New()).(*athenaClientV2)
		client.waitInterval = time.Millisecond
	})

	Context("GetQueryResults", func() {
		It("should start the query in the configured context", func() {
			_, err := client.GetQueryResults(ctx, "select 1")
			Expect(err).ToNot(HaveOccurred())
			Expect(api.started).To(HaveLen(1))
			in := api.started[0]
			Expect(util.SafeString(in.QueryString)).To(Equal("select 1"))
			Expect(util.SafeString(in.WorkGroup)).To(Equal("primary"))
			Expect(util.SafeString(in.QueryExecutionContext.Database)).To(Equal("inventory"))
			Expect(util.SafeString(in.QueryExecutionContext.Catalog)).To(Equal("AwsDataCatalog"))
		})

		It("should skip the header row and join all pages", func() {
			result, err := client.GetQueryResults(ctx, "select id, hostname from computers")
			Expect(err).ToNot(HaveOccurred())
			Expect(result.ColumnNames()).To(Equal([]string{"id", "hostname"}))
			Expect(result.Rows).To(Equal([][]any{{int64(1), "alpha"}, {int64(2), "beta"}}))
			Expect(api.pageTokens).To(Equal([]*string{nil, util.RefString("token")}))
		})

		It("should return error when the query fails", func() {
			api.states = []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateFailed}
			api.reason = "SYNTAX_ERROR"
			_, err := client.GetQueryResults(ctx, "selec")
			Expect(err).To(MatchError(ContainSubstring("SYNTAX_ERROR")))
		})

		It("should return error when the query cannot start", func() {
			api.startErr = errors.New("throttled")
			_, err := client.GetQueryResults(ctx, "select 1")
			Expect(err).To(MatchError(ContainSubstring("throttled")))
		})

		It("should stop waiting when the context ends", func() {
			api.states = []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning}
			client.waitInterval = time.Hour
			c, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			_, err := client.GetQueryResults(c, "select 1")
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})
	})

	Context("GetQueryResultsInto", func() {
		It("should populate the model type", func() {
			items, err := client.GetQueryResultsInto(ctx, "select id, hostname from computers", reflect.TypeOf(computer{}))
			Expect(err).ToNot(HaveOccurred())
			Expect(dalcore.ListOf[computer](items)).To(Equal([]*computer{{ID: 1, Hostname: "alpha"}, {ID: 2, Hostname: "beta"}}))
		})

		It("should populate records when no model type is given", func() {
			items, err := client.GetQueryResultsInto(ctx, "select id, hostname from computers", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(2))
			host, ok := items[1].(*dalcore.Record).Get("hostname")
			Expect(ok).To(BeTrue())
			Expect(host).To(Equal("beta"))
		})

		It("should validate the model before starting the query", func() {
			_, err := client.GetQueryResultsInto(ctx, "select 1", reflect.TypeOf(42))
			Expect(errors.Is(err, dalcore.ErrInvalidModel)).To(BeTrue())
			Expect(api.started).To(BeEmpty())
		})
	})

	Context("GetQueryResultsAsync", func() {
		It("should call back once with the results", func() {
			done := make(chan []interface{}, 1)
			client.GetQueryResultsAsync(ctx, "select id, hostname from computers", reflect.TypeOf(computer{}),
				func(items []interface{}, err error) {
					if err == nil {
						done <- items
					}
					close(done)
				})
			var items []interface{}
			Eventually(done).Should(Receive(&items))
			Expect(items).To(HaveLen(2))
		})
	})
})
