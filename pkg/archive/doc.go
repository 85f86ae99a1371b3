// Package archive persists chat transcripts to object storage.
//
// A transcript is a sequence of chat lines. Each line is stored as its
// timestamp and its bit-packed protocol encoding, so archived transcripts
// decode with the same rules as live traffic. The whole transcript is
// compressed with zstd.
//
//	store := archive.NewS3Store(s3.NewFromConfig(cfg), "game-logs", "prod/")
//	a := archive.New(store)
//	key, err := a.SaveChat(ctx, history.Lines())
//
// Object keys have the form chat/YYYY/MM/DD/<uuid>.slog.zst.
package archive
