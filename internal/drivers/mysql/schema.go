package mysql

// blob is a reserved word in MySQL, hence the quoting.
const Blob = "`blob`"

const (
	queueTable = "CREATE TABLE IF NOT EXISTS queue (\n" +
		"\tseq BIGINT AUTO_INCREMENT PRIMARY KEY,\n" +
		"\tid VARCHAR(36) NOT NULL UNIQUE,\n" +
		"\ttask VARCHAR(255) NOT NULL,\n" +
		"\tenqueued BIGINT NOT NULL,\n" +
		"\tfetched BIGINT NULL,\n" +
		"\tacked BIGINT NULL,\n" +
		"\t" + Blob + " LONGTEXT NOT NULL,\n" +
		"\tretries INT NOT NULL DEFAULT 0,\n" +
		"\teta BIGINT NULL,\n" +
		"\tINDEX queue_enqueued (enqueued ASC, seq ASC)\n" +
		");"

	deadletterTable = "CREATE TABLE IF NOT EXISTS deadletter (\n" +
		"\tseq BIGINT AUTO_INCREMENT PRIMARY KEY,\n" +
		"\tid VARCHAR(36) NOT NULL UNIQUE,\n" +
		"\ttask VARCHAR(255) NOT NULL,\n" +
		"\tenqueued BIGINT NOT NULL,\n" +
		"\tfetched BIGINT NULL,\n" +
		"\tacked BIGINT NULL,\n" +
		"\t" + Blob + " LONGTEXT NOT NULL,\n" +
		"\tretries INT NOT NULL DEFAULT 0,\n" +
		"\teta BIGINT NULL,\n" +
		"\tINDEX deadletter_enqueued (enqueued ASC, seq ASC)\n" +
		");"
)

var Schema = []string{queueTable, deadletterTable}

const ClaimLock = " FOR UPDATE SKIP LOCKED"

var Compaction = []string{"OPTIMIZE TABLE queue"}
