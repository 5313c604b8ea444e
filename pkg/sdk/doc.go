// Package retrieval provides a Go client for the retrieval HTTP API.
//
// The API stores documents in named vector stores and answers natural
// language queries against them. Each store has its own bearer token.
//
//	client := retrieval.New("http://localhost:8000", os.Getenv("MAIN_BEARER"),
//	    retrieval.WithStoreName("main"),
//	)
//	ids, _ := client.Upsert(ctx, []retrieval.Document{
//	    {Text: "The quarterly report is due Friday."},
//	})
//	results, _ := client.Query(ctx, []retrieval.Query{
//	    {Query: "when is the report due?", TopK: 3},
//	})
package retrieval
