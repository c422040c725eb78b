package athena

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/kent-id/dalcore"
	"github.com/kent-id/dalcore/types"
	"github.com/kent-id/dalcore/util"
)

const (
	maxAllowedPageSize = 1000 // max allowed by athena
)

// QueryAPI is the subset of the athena client used to run a query.
// *athena.Client satisfies it.
type QueryAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

type athenaClientV2 struct {
	api          QueryAPI
	engine       *dalcore.Engine
	workgroup    string
	catalog      string
	database     string
	waitInterval time.Duration
	maxPageSize  int32
}

// AthenaClientV2 runs queries on AWS Athena and hands the results to a dalcore
// Engine. Underlying AWS client from aws-sdk-go-v2 is used.
type AthenaClientV2 interface {
	// GetQueryResults returns all result pages as one TabularResult.
	GetQueryResults(ctx context.Context, sqlQuery string) (types.TabularResult, error)
	// GetQueryResultsInto populates modelType (*T per row), or records of a
	// runtime shape when modelType is nil.
	GetQueryResultsInto(ctx context.Context, sqlQuery string, modelType reflect.Type) ([]interface{}, error)
	// GetQueryResultsAsync runs GetQueryResultsInto on a new goroutine and calls
	// done once with its outcome.
	GetQueryResultsAsync(ctx context.Context, sqlQuery string, modelType reflect.Type, done func([]interface{}, error))
}

// NewClientV2 constructs new AthenaClientV2 using specified aws-sdk-go-v2/aws/config, workgroup, database name, and catalog name in Athena.
// A nil engine uses dalcore.DefaultEngine().
func NewClientV2(awsConfig aws.Config, workgroup, database, catalog string, engine *dalcore.Engine) AthenaClientV2 {
	dalcore.LogInfof("creating athena client with workgroup: %s, database: %s, catalog: %s, pageSize: %d, region: %s", workgroup, database, catalog, maxAllowedPageSize, awsConfig.Region)
	return NewClientWithAPI(athena.NewFromConfig(awsConfig), workgroup, database, catalog, engine)
}

// NewClientWithAPI constructs an AthenaClientV2 over an existing QueryAPI.
func NewClientWithAPI(api QueryAPI, workgroup, database, catalog string, engine *dalcore.Engine) AthenaClientV2 {
	if engine == nil {
		engine = dalcore.DefaultEngine()
	}
	return &athenaClientV2{
		api:          api,
		engine:       engine,
		workgroup:    workgroup,
		catalog:      catalog,
		database:     database,
		waitInterval: 1 * time.Second,
		maxPageSize:  maxAllowedPageSize,
	}
}

// GetQueryResults gets query results for the given SQL query as one TabularResult.
//
// Example:
// result, err := client.GetQueryResults(ctx, "select id from my_table")
func (c *athenaClientV2) GetQueryResults(ctx context.Context, sqlQuery string) (types.TabularResult, error) {
	var out types.TabularResult

	// 1. start query
	queryExecutionID, err := c.startQueryAndGetExecutionID(ctx, sqlQuery)
	if err != nil {
		return out, err
	}

	// 2. get query execution info and wait until query finishes
	status, err := c.waitQueryAndGetStatus(ctx, queryExecutionID)
	if err != nil {
		return out, err
	}

	// 3. finally if query is successful, get the query results output
	if status.State != athenatypes.QueryExecutionStateSucceeded {
		reason := util.SafeString(status.StateChangeReason)
		return out, fmt.Errorf("query execution failed with status: %s, reason: %s", status.State, reason)
	}
	queryResultInput := athena.GetQueryResultsInput{
		QueryExecutionId: queryExecutionID,
		MaxResults:       &c.maxPageSize,
	}

	var nextToken *string
	var page uint = 1
	for {
		queryResultInput.NextToken = nextToken
		queryResultOutput, err := c.api.GetQueryResults(ctx, &queryResultInput)
		if err != nil {
			return out, fmt.Errorf("get query results page %d: %w", page, err)
		}
		rs := queryResultOutput.ResultSet
		if rs == nil {
			rs = &athenatypes.ResultSet{}
		}

		// skip header row if first page results
		if page == 1 && len(rs.Rows) > 0 {
			rs.Rows = rs.Rows[1:]
		}

		pageResult, err := FromResultSet(rs)
		if err != nil {
			return out, fmt.Errorf("convert page %d: %w", page, err)
		}
		if page == 1 {
			out = pageResult
		} else {
			out.Rows = append(out.Rows, pageResult.Rows...)
		}

		nextToken = queryResultOutput.NextToken
		if nextToken == nil {
			dalcore.LogInfof("finished fetching %d rows from athena", len(out.Rows))
			break
		}

		page++
		dalcore.LogInfof("fetching next page %d results from athena using nextToken: %s", page, *nextToken)
	}
	return out, nil
}

// GetQueryResultsInto gets query results for the given SQL query and populates them.
// The model is validated before the query is started.
//
// Example:
// rows, err := client.GetQueryResultsInto(ctx, "select id from my_table", reflect.TypeOf(MyModel{}))
func (c *athenaClientV2) GetQueryResultsInto(ctx context.Context, sqlQuery string, modelType reflect.Type) ([]interface{}, error) {
	if modelType != nil {
		if _, err := c.engine.Describe(modelType); err != nil {
			return nil, err
		}
	}
	result, err := c.GetQueryResults(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	return c.engine.Populate(ctx, modelType, result)
}

func (c *athenaClientV2) GetQueryResultsAsync(ctx context.Context, sqlQuery string, modelType reflect.Type, done func([]interface{}, error)) {
	go func() {
		done(c.GetQueryResultsInto(ctx, sqlQuery, modelType))
	}()
}

// startQueryAndGetExecutionID starts query execution and get the execution id to identify the running query in Athena.
func (c *athenaClientV2) startQueryAndGetExecutionID(ctx context.Context, sqlQuery string) (*string, error) {
	startQueryExecContext := athenatypes.QueryExecutionContext{
		Database: util.RefString(c.database),
		Catalog:  util.RefString(c.catalog),
	}

	startQueryExecInput := athena.StartQueryExecutionInput{
		QueryExecutionContext: &startQueryExecContext,
		WorkGroup:             util.RefString(c.workgroup),
		QueryString:           util.RefString(sqlQuery),
	}

	startQueryExecOutput, err := c.api.StartQueryExecution(ctx, &startQueryExecInput)
	if err != nil {
		return nil, fmt.Errorf("start query execution: %w", err)
	}
	dalcore.LogInfof("started query with ExecutionID: %s", util.SafeString(startQueryExecOutput.QueryExecutionId))
	return startQueryExecOutput.QueryExecutionId, nil
}

// waitQueryAndGetStatus waits until query execution finishes and return QueryExecutionStatus.
func (c *athenaClientV2) waitQueryAndGetStatus(ctx context.Context, queryExecutionID *string) (*athenatypes.QueryExecutionStatus, error) {
	queryExecInput := athena.GetQueryExecutionInput{
		QueryExecutionId: queryExecutionID,
	}

	for {
		queryExecOutput, err := c.api.GetQueryExecution(ctx, &queryExecInput)
		if err != nil {
			return nil, fmt.Errorf("get query execution: %w", err)
		}
		if queryExecOutput.QueryExecution == nil || queryExecOutput.QueryExecution.Status == nil {
			return nil, fmt.Errorf("query execution %s has no status", util.SafeString(queryExecutionID))
		}
		status := queryExecOutput.QueryExecution.Status
		if status.State != athenatypes.QueryExecutionStateRunning && status.State != athenatypes.QueryExecutionStateQueued {
			dalcore.LogInfof("stopped query execution with state: %s", status.State)
			return status, nil
		}
		dalcore.LogInfof("still awaiting query results with state: %s, waitInterval: %s", status.State, c.waitInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.waitInterval):
		}
	}
}
