package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	// 続く引数で up（デフォルト）、down、version を指定する。
	CommandMigrate Command = "migrate"
	// CommandReconcile は期限切れの購読を一括で失効させることを示す。
	// cronなど外部のスケジューラから実行する想定。
	CommandReconcile Command = "reconcile"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "reconcile":
		return CommandReconcile
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// MigrateAction はmigrateサブコマンドの動作を表す。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// ParseMigrateAction はmigrateに続く引数から動作を解析する。
// 引数がない場合はMigrateUpを返し、未知の動作の場合はfalseを返す。
func ParseMigrateAction(args []string) (MigrateAction, bool) {
	if len(args) == 0 {
		return MigrateUp, true
	}
	switch MigrateAction(args[0]) {
	case MigrateUp, MigrateDown, MigrateVersion:
		return MigrateAction(args[0]), true
	default:
		return "", false
	}
}
