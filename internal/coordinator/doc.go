// Package coordinator はワーカープールの1回の実行を統括する。
//
// Engine はジョブの分割、ワーカーとコレクタの起動、全ワーカーの終了待ち、
// 結果シンクのクローズ、ドレイン完了待ちを順に行い、実行結果を Result として返す。
//
// # 状態遷移
//
//	Idle -> Partitioning -> Running -> Closing -> Draining -> Done
//
// Closing に入るのは全ワーカーが戻った後だけ。ワーカーがエラーを返した場合も
// シンクは閉じられ、コレクタは受信済みの結果をすべて出力してからエラーが返る。
//
// # プリセット
//
// - quick: 40ジョブ, fib(10), 8ワーカー
// - tpl: 40ジョブ, fib(35), 8ワーカー, 各ジョブ後に10ms待機
// - browser: 40ジョブ, fib(38), 8ワーカー
// - threads: 50ジョブ, fib(32), 10ワーカー
// - sequential: 40ジョブ, fib(25), 1ワーカー
//
// # 使用例
//
//	config, _ := coordinator.GetPreset("tpl")
//	engine := coordinator.New(config)
//	engine.SetOutput(os.Stdout)
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report())
package coordinator
