// Package ragvoice embeds the document-grounded chat and voice assistant
// in a Go program, without running the HTTP server.
//
//	client, err := ragvoice.New(ctx,
//	    ragvoice.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	    ragvoice.WithDataDir("./DATA"),
//	)
//	if err != nil { ... }
//	defer client.Close()
//
//	_, _ = client.Ingest(ctx, "handbook.pdf")
//	answer, _ := client.Ask(ctx, "How many vacation days do I get?")
//	fmt.Println(answer.Text)
//
// Documents are persisted under the data directory (or in Redis with
// WithRedis) and reloaded on the next New.
package ragvoice
