// Command server はLTI録音課題ツールのAPIサーバーを起動する。
//
//	server [serve]          APIサーバー（既定）
//	server migrate [down]   マイグレーションの適用または直近1件の巻き戻し
//	server healthcheck      /health への疎通確認（distroless用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/audiolti/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
