// Package switchboard is a config-first action-plan router for
// conversational systems.
//
// A switchboard deployment declares a catalog of plans: small DAGs of tool
// invocations that answer one kind of user request. Each incoming turn is
// matched to a plan by a pluggable selector, the plan is executed with
// bounded concurrency, and the results stream back to the caller as an
// ordered sequence of chunks closed by exactly one terminal chunk.
//
// Everything is driven by YAML configuration:
//
//	tools:
//	  orders_db:
//	    type: sql_query
//	    settings:
//	      driver: postgres
//	      dsn: "${DATABASE_URL}"
//
//	plans:
//	  - id: order_report
//	    steps:
//	      - id: gather
//	        mode: parallel
//	        invocations:
//	          - tool: orders_db
//	            input: {query: "${params.query}"}
//	      - id: answer
//	        mode: sequential
//	        depends_on: [gather]
//	        invocations:
//	          - tool: compose
//	            input: {sources: "${steps.gather}"}
//
// Start the server:
//
//	switchboard serve --config switchboard.yaml
//
// See the pkg/ packages for the embeddable engine: pkg/plan for the plan
// model, pkg/executor and pkg/runner for execution, pkg/router for turn
// routing and run management.
package switchboard
