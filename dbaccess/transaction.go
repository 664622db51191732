package dbaccess

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/dashpay/dashspv/database"
	"github.com/dashpay/dashspv/util/binaryserializer"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

var transactionsBucket = database.MakeBucket([]byte("transactions"))

// TransactionRecord is a wallet transaction together with the place it
// holds in the chain.
type TransactionRecord struct {
	Tx *wire.MsgTx

	// BlockHeight is blockchain.UnknownHeight while the transaction is
	// unconfirmed.
	BlockHeight int32
	Timestamp   time.Time
}

func walletTransactionsBucket(walletID string) *database.Bucket {
	return transactionsBucket.Bucket([]byte(walletID))
}

func transactionKey(walletID string, txHash *chainhash.Hash) *database.Key {
	return walletTransactionsBucket(walletID).Key(txHash[:])
}

func serializeTransactionRecord(record *TransactionRecord) ([]byte, error) {
	var buf bytes.Buffer
	err := binaryserializer.PutUint32(&buf, binary.LittleEndian, uint32(record.BlockHeight))
	if err != nil {
		return nil, err
	}
	err = binaryserializer.PutUint64(&buf, binary.LittleEndian, uint64(record.Timestamp.Unix()))
	if err != nil {
		return nil, err
	}
	err = record.Tx.Serialize(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeTransactionRecord(recordBytes []byte) (*TransactionRecord, error) {
	r := bytes.NewReader(recordBytes)
	height, err := binaryserializer.Uint32(r, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	timestamp, err := binaryserializer.Uint64(r, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	tx := &wire.MsgTx{}
	err = tx.Deserialize(r)
	if err != nil {
		return nil, err
	}
	return &TransactionRecord{
		Tx:          tx,
		BlockHeight: int32(height),
		Timestamp:   time.Unix(int64(timestamp), 0),
	}, nil
}

// StoreTransaction stores the given record under the given wallet,
// replacing any previous record of the same transaction.
func StoreTransaction(context Context, walletID string, record *TransactionRecord) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	recordBytes, err := serializeTransactionRecord(record)
	if err != nil {
		return err
	}
	txHash := record.Tx.TxHash()
	return accessor.Put(transactionKey(walletID, &txHash), recordBytes)
}

// FetchTransaction returns the record of the given transaction.
// Returns ErrNotFound if the transaction is not stored.
func FetchTransaction(context Context, walletID string, txHash *chainhash.Hash) (*TransactionRecord, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	recordBytes, err := accessor.Get(transactionKey(walletID, txHash))
	if err != nil {
		return nil, err
	}
	return deserializeTransactionRecord(recordBytes)
}

// DeleteTransaction removes the given transaction from the given wallet.
func DeleteTransaction(context Context, walletID string, txHash *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(transactionKey(walletID, txHash))
}

// FetchTransactions returns every transaction record stored under the
// given wallet, in no particular order.
func FetchTransactions(context Context, walletID string) ([]*TransactionRecord, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	cursor, err := accessor.Cursor(walletTransactionsBucket(walletID))
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var records []*TransactionRecord
	for cursor.Next() {
		recordBytes, err := cursor.Value()
		if err != nil {
			return nil, err
		}
		record, err := deserializeTransactionRecord(recordBytes)
		if err != nil {
			key, _ := cursor.Key()
			return nil, errors.Wrapf(err, "failed deserializing transaction %s", key)
		}
		records = append(records, record)
	}
	return records, nil
}
