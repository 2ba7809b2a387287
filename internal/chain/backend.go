package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/errors"
	"go.uber.org/zap"
)

// contractABIJSON 游戏合约ABI
// getGame返回平铺的22个输出而非结构体，旧版合约可能在尾部缺少字段，
// 解码侧用安全取值函数按位读取，缺失字段落到零值
const contractABIJSON = `[
  {"type":"function","name":"createGame","stateMutability":"payable","inputs":[
    {"name":"name","type":"string"},
    {"name":"gameType","type":"uint8"},
    {"name":"maxPlayers","type":"uint256"},
    {"name":"durationHours","type":"uint256"},
    {"name":"passwordHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"joinGame","stateMutability":"payable","inputs":[
    {"name":"gameId","type":"uint256"},
    {"name":"password","type":"string"}],"outputs":[]},
  {"type":"function","name":"commitScore","stateMutability":"nonpayable","inputs":[
    {"name":"gameId","type":"uint256"},
    {"name":"commitHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"revealScore","stateMutability":"nonpayable","inputs":[
    {"name":"gameId","type":"uint256"},
    {"name":"score","type":"uint256"},
    {"name":"salt","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"commitRevealAndSubmit","stateMutability":"nonpayable","inputs":[
    {"name":"gameId","type":"uint256"},
    {"name":"score","type":"uint256"},
    {"name":"salt","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"submitGameCompletion","stateMutability":"nonpayable","inputs":[
    {"name":"gameId","type":"uint256"},
    {"name":"score","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelGame","stateMutability":"nonpayable","inputs":[
    {"name":"gameId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getGame","stateMutability":"view","inputs":[
    {"name":"gameId","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},
    {"name":"name","type":"string"},
    {"name":"creator","type":"address"},
    {"name":"gameType","type":"uint8"},
    {"name":"status","type":"uint8"},
    {"name":"stake","type":"uint256"},
    {"name":"prizePool","type":"uint256"},
    {"name":"winnerPrize","type":"uint256"},
    {"name":"maxPlayers","type":"uint256"},
    {"name":"currentPlayers","type":"uint256"},
    {"name":"createdAt","type":"uint256"},
    {"name":"startedAt","type":"uint256"},
    {"name":"completedAt","type":"uint256"},
    {"name":"endTime","type":"uint256"},
    {"name":"winner","type":"address"},
    {"name":"winnerScore","type":"uint256"},
    {"name":"finalScore","type":"uint256"},
    {"name":"vrfRequestId","type":"uint256"},
    {"name":"vrfFulfilled","type":"bool"},
    {"name":"randomNumber","type":"uint256"},
    {"name":"cardOrder","type":"uint256[]"},
    {"name":"passwordHash","type":"bytes32"}]},
  {"type":"function","name":"getPlayer","stateMutability":"view","inputs":[
    {"name":"gameId","type":"uint256"},
    {"name":"player","type":"address"}],"outputs":[
    {"name":"joined","type":"bool"},
    {"name":"completed","type":"bool"},
    {"name":"moveCount","type":"uint256"},
    {"name":"finalScore","type":"uint256"},
    {"name":"completedAt","type":"uint256"}]},
  {"type":"function","name":"getGamePlayers","stateMutability":"view","inputs":[
    {"name":"gameId","type":"uint256"}],"outputs":[
    {"name":"players","type":"address[]"}]},
  {"type":"function","name":"getActiveGames","stateMutability":"view","inputs":[],"outputs":[
    {"name":"gameIds","type":"uint256[]"}]},
  {"type":"function","name":"getPlayerGames","stateMutability":"view","inputs":[
    {"name":"player","type":"address"}],"outputs":[
    {"name":"gameIds","type":"uint256[]"}]},
  {"type":"function","name":"houseBalance","stateMutability":"view","inputs":[],"outputs":[
    {"name":"balance","type":"uint256"}]},
  {"type":"event","name":"GameCreated","inputs":[
    {"name":"gameId","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"name","type":"string","indexed":false},
    {"name":"gameType","type":"uint8","indexed":false},
    {"name":"stake","type":"uint256","indexed":false},
    {"name":"maxPlayers","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"GameCompleted","inputs":[
    {"name":"gameId","type":"uint256","indexed":true},
    {"name":"winner","type":"address","indexed":true},
    {"name":"prize","type":"uint256","indexed":false},
    {"name":"finalScore","type":"uint256","indexed":false},
    {"name":"vrfRequestId","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"VRFFulfilled","inputs":[
    {"name":"gameId","type":"uint256","indexed":true},
    {"name":"requestId","type":"uint256","indexed":false},
    {"name":"randomNumber","type":"uint256","indexed":false},
    {"name":"cardOrder","type":"uint256[]","indexed":false}],"anonymous":false}
]`

// EthBackend 基于ethclient的合约后端实现
type EthBackend struct {
	client      *ethclient.Client
	contract    common.Address
	abi         abi.ABI
	privateKey  *ecdsa.PrivateKey
	caller      common.Address
	chainID     *big.Int
	gasLimit    uint64
	callTimeout time.Duration
	log         *zap.Logger

	// 串行化交易构建，防止并发发送拿到相同nonce
	sendMu sync.Mutex
}

// NewEthBackend 创建合约后端
func NewEthBackend(cfg *config.ChainConfig, log *zap.Logger) (*EthBackend, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRPCUnavailable, "RPC连接失败: "+cfg.RPCURL)
	}

	parsed, err := abi.JSON(strings.NewReader(contractABIJSON))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrABIDecode, "合约ABI解析失败")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidate, "私钥解析失败")
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 500000
	}

	b := &EthBackend{
		client:      client,
		contract:    common.HexToAddress(cfg.ContractAddress),
		abi:         parsed,
		privateKey:  privateKey,
		caller:      crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:     new(big.Int).SetUint64(cfg.ChainID),
		gasLimit:    gasLimit,
		callTimeout: callTimeout,
		log:         log,
	}

	log.Info("合约后端已就绪",
		zap.String("contract", b.contract.Hex()),
		zap.String("caller", b.caller.Hex()),
		zap.Uint64("chain_id", cfg.ChainID))
	return b, nil
}

// Close 关闭RPC连接
func (b *EthBackend) Close() {
	b.client.Close()
}

// Caller 返回签名账户地址
func (b *EthBackend) Caller() common.Address {
	return b.caller
}

// ChainID 返回链标识
func (b *EthBackend) ChainID() uint64 {
	return b.chainID.Uint64()
}

// GetGame 读取游戏记录
func (b *EthBackend) GetGame(ctx context.Context, gameID uint64) (*RawGame, error) {
	out, err := b.call(ctx, "getGame", new(big.Int).SetUint64(gameID))
	if err != nil {
		return nil, err
	}

	return &RawGame{
		ID:             bigAt(out, 0),
		Name:           strAt(out, 1),
		Creator:        addrAt(out, 2),
		GameType:       u8At(out, 3),
		Status:         u8At(out, 4),
		Stake:          bigAt(out, 5),
		PrizePool:      bigAt(out, 6),
		WinnerPrize:    bigAt(out, 7),
		MaxPlayers:     bigAt(out, 8),
		CurrentPlayers: bigAt(out, 9),
		CreatedAt:      bigAt(out, 10),
		StartedAt:      bigAt(out, 11),
		CompletedAt:    bigAt(out, 12),
		EndTime:        bigAt(out, 13),
		Winner:         addrAt(out, 14),
		WinnerScore:    bigAt(out, 15),
		FinalScore:     bigAt(out, 16),
		VRFRequestID:   bigAt(out, 17),
		VRFFulfilled:   boolAt(out, 18),
		RandomNumber:   bigAt(out, 19),
		CardOrder:      bigSliceAt(out, 20),
		PasswordHash:   bytes32At(out, 21),
	}, nil
}

// GetPlayer 读取玩家记录
func (b *EthBackend) GetPlayer(ctx context.Context, gameID uint64, addr common.Address) (*RawPlayer, error) {
	out, err := b.call(ctx, "getPlayer", new(big.Int).SetUint64(gameID), addr)
	if err != nil {
		return nil, err
	}
	return &RawPlayer{
		Joined:      boolAt(out, 0),
		Completed:   boolAt(out, 1),
		MoveCount:   bigAt(out, 2),
		FinalScore:  bigAt(out, 3),
		CompletedAt: bigAt(out, 4),
	}, nil
}

// GetGamePlayers 读取玩家名册
func (b *EthBackend) GetGamePlayers(ctx context.Context, gameID uint64) ([]common.Address, error) {
	out, err := b.call(ctx, "getGamePlayers", new(big.Int).SetUint64(gameID))
	if err != nil {
		return nil, err
	}
	return addrSliceAt(out, 0), nil
}

// GetActiveGames 读取进行中游戏ID索引
func (b *EthBackend) GetActiveGames(ctx context.Context) ([]uint64, error) {
	out, err := b.call(ctx, "getActiveGames")
	if err != nil {
		return nil, err
	}
	return idSliceAt(out, 0), nil
}

// GetPlayerGames 读取玩家游戏ID索引
func (b *EthBackend) GetPlayerGames(ctx context.Context, addr common.Address) ([]uint64, error) {
	out, err := b.call(ctx, "getPlayerGames", addr)
	if err != nil {
		return nil, err
	}
	return idSliceAt(out, 0), nil
}

// HouseBalance 读取庄家资金池余额
func (b *EthBackend) HouseBalance(ctx context.Context) (*big.Int, error) {
	out, err := b.call(ctx, "houseBalance")
	if err != nil {
		return nil, err
	}
	balance := bigAt(out, 0)
	if balance == nil {
		balance = big.NewInt(0)
	}
	return balance, nil
}

// BlockNumber 读取最新区块高度
func (b *EthBackend) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	return b.client.BlockNumber(ctx)
}

// FilterGameCreated 在指定区块范围内过滤GameCreated事件
func (b *EthBackend) FilterGameCreated(ctx context.Context, fromBlock, toBlock uint64) ([]GameCreatedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	ev := b.abi.Events["GameCreated"]
	logs, err := b.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{b.contract},
		Topics:    [][]common.Hash{{ev.ID}},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRPCUnavailable, "事件日志过滤失败")
	}

	events := make([]GameCreatedEvent, 0, len(logs))
	for i := range logs {
		parsed, err := b.parseGameCreated(&logs[i])
		if err != nil {
			b.log.Debug("GameCreated事件解码失败，跳过", zap.Error(err))
			continue
		}
		events = append(events, *parsed)
	}
	return events, nil
}

// ParseGameCreated 从交易回执中提取GameCreated事件
func (b *EthBackend) ParseGameCreated(receipt *types.Receipt) (*GameCreatedEvent, error) {
	ev := b.abi.Events["GameCreated"]
	for _, lg := range receipt.Logs {
		if lg.Address != b.contract || len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		return b.parseGameCreated(lg)
	}
	return nil, errors.New(errors.ErrABIDecode, "回执中未找到GameCreated事件")
}

// parseGameCreated 解码单条GameCreated日志
func (b *EthBackend) parseGameCreated(lg *types.Log) (*GameCreatedEvent, error) {
	if len(lg.Topics) < 3 {
		return nil, errors.New(errors.ErrABIDecode, "GameCreated事件主题数不足")
	}

	event := &GameCreatedEvent{
		GameID:  new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		Creator: common.BytesToAddress(lg.Topics[2].Bytes()),
		TxHash:  lg.TxHash,
	}

	out, err := b.abi.Events["GameCreated"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrABIDecode)
	}
	event.Name = strAt(out, 0)
	event.Mode = u8At(out, 1)
	event.Stake = bigAt(out, 2)
	if mp := bigAt(out, 3); mp != nil {
		event.MaxPlayers = mp.Uint64()
	}
	return event, nil
}

// CreateGame 创建游戏，押金随交易转账
func (b *EthBackend) CreateGame(ctx context.Context, params CreateGameParams) (*types.Transaction, error) {
	passwordHash := common.Hash{}
	if params.Password != "" {
		passwordHash = crypto.Keccak256Hash([]byte(params.Password))
	}
	return b.sendTx(ctx, params.Stake, "createGame",
		params.Name,
		params.Mode,
		new(big.Int).SetUint64(params.MaxPlayers),
		new(big.Int).SetUint64(params.DurationHours),
		passwordHash)
}

// JoinGame 加入游戏
func (b *EthBackend) JoinGame(ctx context.Context, gameID uint64, password string, stake *big.Int) (*types.Transaction, error) {
	return b.sendTx(ctx, stake, "joinGame", new(big.Int).SetUint64(gameID), password)
}

// CommitScore 提交分数承诺
func (b *EthBackend) CommitScore(ctx context.Context, gameID uint64, hash common.Hash) (*types.Transaction, error) {
	return b.sendTx(ctx, nil, "commitScore", new(big.Int).SetUint64(gameID), hash)
}

// RevealScore 揭示分数
func (b *EthBackend) RevealScore(ctx context.Context, gameID uint64, score int64, salt *big.Int) (*types.Transaction, error) {
	return b.sendTx(ctx, nil, "revealScore",
		new(big.Int).SetUint64(gameID), big.NewInt(score), salt)
}

// CommitRevealAndSubmit 单交易提交、揭示并结算
func (b *EthBackend) CommitRevealAndSubmit(ctx context.Context, gameID uint64, score int64, salt *big.Int) (*types.Transaction, error) {
	return b.sendTx(ctx, nil, "commitRevealAndSubmit",
		new(big.Int).SetUint64(gameID), big.NewInt(score), salt)
}

// SubmitCompletion 提交完局分数（人机对战无需承诺-揭示）
func (b *EthBackend) SubmitCompletion(ctx context.Context, gameID uint64, score int64) (*types.Transaction, error) {
	return b.sendTx(ctx, nil, "submitGameCompletion",
		new(big.Int).SetUint64(gameID), big.NewInt(score))
}

// CancelGame 取消游戏
func (b *EthBackend) CancelGame(ctx context.Context, gameID uint64) (*types.Transaction, error) {
	return b.sendTx(ctx, nil, "cancelGame", new(big.Int).SetUint64(gameID))
}

// WaitMined 等待交易上链
func (b *EthBackend) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, b.client, tx)
}

// call 只读合约调用，统一超时与ABI编解码
func (b *EthBackend) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrABIDecode, "调用参数编码失败: "+method)
	}

	start := time.Now()
	result, err := b.client.CallContract(ctx, ethereum.CallMsg{
		To:   &b.contract,
		Data: data,
	}, nil)
	if err != nil {
		if reason, ok := ExtractRevertReason(err); ok {
			return nil, errors.Reverted(reason).WithCause(err)
		}
		return nil, errors.Wrap(err, errors.ErrRPCUnavailable, "合约调用失败: "+method)
	}

	out, err := b.abi.Unpack(method, result)
	if err != nil {
		b.log.Debug("合约返回解码失败",
			zap.String("method", method),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrABIDecode, "调用返回解码失败: "+method)
	}
	return out, nil
}

// sendTx 构建、签名并广播一笔合约交易
func (b *EthBackend) sendTx(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrABIDecode, "交易参数编码失败: "+method)
	}
	if value == nil {
		value = big.NewInt(0)
	}

	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	nonce, err := b.client.PendingNonceAt(ctx, b.caller)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRPCUnavailable, "nonce查询失败")
	}

	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRPCUnavailable, "gas价格查询失败")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &b.contract,
		Value:    value,
		Gas:      b.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "交易签名失败")
	}

	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}

	b.log.Debug("交易已广播",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce))
	return signed, nil
}

// 以下为ABI输出的安全取值函数
// 越界或类型不符一律返回零值，旧版合约缺尾部字段时不报错

func bigAt(out []interface{}, i int) *big.Int {
	if i >= len(out) {
		return nil
	}
	v, _ := out[i].(*big.Int)
	return v
}

func strAt(out []interface{}, i int) string {
	if i >= len(out) {
		return ""
	}
	v, _ := out[i].(string)
	return v
}

func addrAt(out []interface{}, i int) common.Address {
	if i >= len(out) {
		return common.Address{}
	}
	v, _ := out[i].(common.Address)
	return v
}

func boolAt(out []interface{}, i int) bool {
	if i >= len(out) {
		return false
	}
	v, _ := out[i].(bool)
	return v
}

func u8At(out []interface{}, i int) uint8 {
	if i >= len(out) {
		return 0
	}
	v, _ := out[i].(uint8)
	return v
}

func bytes32At(out []interface{}, i int) common.Hash {
	if i >= len(out) {
		return common.Hash{}
	}
	if v, ok := out[i].([32]byte); ok {
		return common.Hash(v)
	}
	return common.Hash{}
}

func bigSliceAt(out []interface{}, i int) []*big.Int {
	if i >= len(out) {
		return nil
	}
	v, _ := out[i].([]*big.Int)
	return v
}

func addrSliceAt(out []interface{}, i int) []common.Address {
	if i >= len(out) {
		return nil
	}
	v, _ := out[i].([]common.Address)
	return v
}

func idSliceAt(out []interface{}, i int) []uint64 {
	raw := bigSliceAt(out, i)
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		if id, ok := ToSafeUint(v); ok && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
