// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
Package workflow 提供带类型状态的有向图编排与执行引擎。

# 概述

workflow 包实现一个泛型状态机：节点读写同一个 *S 状态，边可以是固定边，
也可以是基于状态的条件边（允许回边形成重试环）。执行器按步推进，每个
节点完成后向调用方发出流式事件，并以步数上限防止失控循环。

# 核心接口与类型

  - NodeFunc[S]：节点函数 func(ctx, *S) error
  - Router[S]：条件路由 func(*S) string
  - Builder[S]：构建图（AddNode / AddEdge / AddConditionalEdge / SetEntry）
  - Graph[S]：编译后的只读图，Run(ctx, *S) 执行
  - Branch[S]：并行分支：只读状态，返回延迟写入的 apply 函数
  - Parallel：errgroup 扇出，join 后按分支顺序串行写回
  - StreamEvent：node_start / node_complete / node_error / step_progress

# 主要能力

  - 节点级超时（WithTimeout）与错误策略（WithContinueOnError）
  - 流式观察：WithStreamEmitter 通过 context 传递回调
  - 可观测：每个节点一个 OpenTelemetry span，可选 NodeObserver 记录耗时
  - 终止保证：MaxSteps 上限，超出返回 ErrStepLimit
*/
package workflow
